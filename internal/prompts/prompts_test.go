package prompts

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryParams struct {
	JournalEntry string
	enhancement  Enhancement
}

func (p entryParams) PromptEnhancement() Enhancement { return p.enhancement }

const entryTemplate = `Trading Journal Entry: "{{.JournalEntry}}"`

func TestTemplateBuilder(t *testing.T) {
	b := MustTemplate[entryParams]("entry", entryTemplate)

	got, err := b.Build(entryParams{JournalEntry: "Cut my loser early today."})
	require.NoError(t, err)
	assert.Equal(t, `Trading Journal Entry: "Cut my loser early today."`, got)
	assert.Equal(t, []string{"JournalEntry"}, b.Variables())
	assert.Equal(t, HashText(entryTemplate), b.Hash())
	assert.Equal(t, "entry", b.Name())
}

func TestTemplateBuilder_ParseError(t *testing.T) {
	_, err := NewTemplateBuilder[entryParams]("bad", "{{.JournalEntry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestTemplateBuilder_MissingField(t *testing.T) {
	b := MustTemplate[map[string]string]("m", "{{.Missing}}")
	_, err := b.Build(map[string]string{})
	require.Error(t, err)
}

func TestBuilderFunc(t *testing.T) {
	b := BuilderFunc[string](func(s string) (string, error) { return "echo " + s, nil })
	got, err := b.Build("hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", got)
}

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Hello {{.Name}}, you have {{ .Count }} items", []string{"Count", "Name"}},
		{"{{.Entry.Date}} {{.Entry.Date}}", []string{"Entry.Date"}},
		{"{{- .Trimmed -}}", []string{"Trimmed"}},
		{"no variables", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVariables(tt.text))
		})
	}
}

func TestEnhanced_NoPreviousResultReturnsBase(t *testing.T) {
	b := Enhance[entryParams](MustTemplate[entryParams]("entry", entryTemplate))

	got, err := b.Build(entryParams{JournalEntry: "x"})
	require.NoError(t, err)
	assert.Equal(t, `Trading Journal Entry: "x"`, got)
}

func TestEnhanced_WrapsPreviousResult(t *testing.T) {
	b := Enhance[entryParams](MustTemplate[entryParams]("entry", entryTemplate))

	got, err := b.Build(entryParams{
		JournalEntry: "x",
		enhancement: Enhancement{
			Guidance:       "add evidence",
			PreviousResult: json.RawMessage(`{"score":0.2}`),
			Iteration:      2,
		},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "[ITERATION 2]"))
	assert.Contains(t, got, "Original Request:\nTrading Journal Entry: \"x\"")
	assert.Contains(t, got, "Previous Result:\n{\n  \"score\": 0.2\n}")
	assert.Contains(t, got, "Improvement Guidance:\nadd evidence")
	assert.True(t, strings.HasSuffix(got, "This is iteration 2 of a progressive improvement process."))
}

func TestEnhancePrompt_DefaultGuidance(t *testing.T) {
	got, err := EnhancePrompt("base", Enhancement{PreviousResult: json.RawMessage(`[1]`)}, nil)
	require.NoError(t, err)
	assert.Contains(t, got, DefaultGuidance)
	assert.Contains(t, got, "[ITERATION 2]")
}

func TestEnhancePrompt_NonJSONPreviousKeptVerbatim(t *testing.T) {
	got, err := EnhancePrompt("base", Enhancement{PreviousResult: json.RawMessage("plain text"), Iteration: 3}, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "Previous Result:\nplain text")
}

func TestEnhanced_BaseErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	b := Enhance[entryParams](BuilderFunc[entryParams](func(entryParams) (string, error) { return "", boom }))
	_, err := b.Build(entryParams{})
	assert.ErrorIs(t, err, boom)
}

func TestTokenBudget(t *testing.T) {
	budget, err := NewTokenBudget(50)
	require.NoError(t, err)

	assert.Positive(t, budget.Count("hello world"))
	assert.True(t, budget.Fits("hello world"))
	assert.Equal(t, "short", budget.Truncate("short", 10))

	long := strings.Repeat("trading psychology ", 200)
	cut := budget.Truncate(long, 20)
	assert.True(t, strings.HasSuffix(cut, TruncationMarker))
	assert.Less(t, len(cut), len(long))

	_, err = NewTokenBudget(0)
	assert.Error(t, err)
}

func TestTokenBudget_TruncateKeepsValidUTF8(t *testing.T) {
	budget, err := NewTokenBudget(50)
	require.NoError(t, err)

	// Emoji and CJK text encode to several tokens per rune.
	long := strings.Repeat("焦虑地追单📉后悔😤 ", 40)
	for limit := 1; limit <= 30; limit++ {
		cut := budget.Truncate(long, limit)
		require.True(t, utf8.ValidString(cut), "limit %d produced invalid UTF-8: %q", limit, cut)
		assert.True(t, strings.HasSuffix(cut, TruncationMarker))
		assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(cut, TruncationMarker)), "limit %d", limit)
	}
}

func TestEnhancePrompt_TrimsPreviousToBudget(t *testing.T) {
	budget, err := NewTokenBudget(150)
	require.NoError(t, err)

	items := make([]string, 300)
	for i := range items {
		items[i] = "observation"
	}
	prev, err := json.Marshal(items)
	require.NoError(t, err)

	got, err := EnhancePrompt("base", Enhancement{PreviousResult: prev, Iteration: 2}, budget)
	require.NoError(t, err)
	assert.Contains(t, got, TruncationMarker)
	assert.Contains(t, got, "Improvement Guidance:")
	assert.Less(t, budget.Count(got), 200)
}
