package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reflectionShape() *Shape {
	return New("journal_reflection", "reflection", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{"type": "string"},
			"mood": map[string]any{
				"type": "string",
				"enum": []string{"happy", "sad", "anxious", "excited", "neutral"},
			},
			"highlights": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
			},
		},
		"required": []string{"date", "mood", "highlights"},
	})
}

type reflection struct {
	Date       string   `json:"date"`
	Mood       string   `json:"mood"`
	Highlights []string `json:"highlights"`
}

func TestDecode_Valid(t *testing.T) {
	got, err := Decode[reflection](reflectionShape(), []byte(`{"date":"2024-01-02","mood":"happy","highlights":["shipped"]}`))
	require.NoError(t, err)
	assert.Equal(t, reflection{Date: "2024-01-02", Mood: "happy", Highlights: []string{"shipped"}}, got)
}

func TestDecode_InvalidJSON(t *testing.T) {
	for _, raw := range []string{`{"date":`, `not json`, `{} trailing`, ``} {
		_, err := Decode[reflection](reflectionShape(), []byte(raw))
		assert.ErrorIs(t, err, ErrInvalidJSON, "input %q", raw)
	}
}

func TestDecode_MissingRequiredNamesField(t *testing.T) {
	_, err := Decode[reflection](reflectionShape(), []byte(`{"date":"2024-01-02","highlights":["x"]}`))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "/mood", ve.Fields[0].Path)
	assert.Equal(t, "required", ve.Fields[0].Keyword)
	assert.False(t, errors.Is(err, ErrInvalidJSON))
}

func TestValidate_MultipleDiagnostics(t *testing.T) {
	s := reflectionShape()
	err := s.Validate(map[string]any{"mood": "furious", "highlights": []any{}})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	paths := ve.Paths()
	assert.Contains(t, paths, "/date")
	assert.Contains(t, paths, "/mood")
	assert.Contains(t, paths, "/highlights")
	assert.Contains(t, err.Error(), "journal_reflection")
}

func TestValidate_GoValues(t *testing.T) {
	s := reflectionShape()
	assert.NoError(t, s.Validate(reflection{Date: "d", Mood: "sad", Highlights: []string{"a"}}))
	assert.Error(t, s.Validate(reflection{Date: "d", Mood: "sad"}))
}

func TestShape_ParametersIsACopy(t *testing.T) {
	s := reflectionShape()
	params := s.Parameters()
	params["properties"].(map[string]any)["date"] = "mutated"
	params["required"].([]string)[0] = "mutated"

	again := s.Parameters()
	assert.IsType(t, map[string]any{}, again["properties"].(map[string]any)["date"])
	assert.Equal(t, []string{"date", "mood", "highlights"}, s.Required())
}

func TestShape_BadSchemaFailsCompile(t *testing.T) {
	s := New("broken", "", map[string]any{"type": 12})
	assert.Error(t, s.Compile())
	assert.Error(t, s.Validate(map[string]any{}))
}

func TestCompose(t *testing.T) {
	sentiment := New("sentiment", "", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"overallSentiment": map[string]any{"type": "string"},
			"sentimentScore":   map[string]any{"type": "number"},
		},
		"required": []string{"overallSentiment", "sentimentScore"},
	})
	advice := New("advice", "", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tradingSummary": map[string]any{"type": "string"},
		},
		"required": []any{"tradingSummary"},
	})

	composed, err := Compose("general", "merged", Part{"core", sentiment}, Part{"recommendations", advice})
	require.NoError(t, err)

	assert.Equal(t, []string{"overallSentiment", "sentimentScore", "tradingSummary"}, composed.Properties())
	assert.ElementsMatch(t, []string{"overallSentiment", "sentimentScore", "tradingSummary"}, composed.Required())
	assert.Equal(t, "core", composed.Origin("sentimentScore"))
	assert.Equal(t, "recommendations", composed.Origin("tradingSummary"))
	assert.Equal(t, []string{"core", "recommendations"}, composed.Parts())

	err = composed.Validate(map[string]any{"overallSentiment": "neutral", "sentimentScore": 0.1})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "/tradingSummary", ve.Fields[0].Path)
	assert.Equal(t, "recommendations", ve.Fields[0].Origin)
	assert.True(t, strings.Contains(ve.Error(), "(recommendations)"))
}

func TestCompose_DuplicateField(t *testing.T) {
	a := New("a", "", map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "string"}}})
	b := New("b", "", map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "number"}}})

	_, err := Compose("ab", "", Part{"first", a}, Part{"second", b})
	require.ErrorIs(t, err, ErrDuplicateField)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestCompose_RejectsNonObjectPart(t *testing.T) {
	s := New("scalar", "", map[string]any{"type": "string"})
	_, err := Compose("bad", "", Part{"scalar", s})
	assert.Error(t, err)
}
