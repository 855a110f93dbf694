package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepsych/insight/internal/agents"
	"github.com/tradepsych/insight/internal/agents/journal_reflection"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/refine"
	"github.com/tradepsych/insight/internal/store"
)

type instantTimer struct{}

func (instantTimer) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func reflection(mood string) map[string]any {
	return map[string]any{
		"date":        "2024-03-01",
		"mood":        mood,
		"highlights":  []string{"kept a journal"},
		"challenges":  []string{},
		"actionItems": []string{"review trades"},
	}
}

func critique(score float64) map[string]any {
	return map[string]any{
		"strengths":           []map[string]any{{"aspect": "structure", "description": "clear"}},
		"weaknesses":          []map[string]any{{"aspect": "depth", "description": "thin", "improvementSuggestion": "add detail"}},
		"improvementGuidance": "Be more specific.",
		"focusAreas":          []string{"depth"},
		"qualityScore":        score,
	}
}

func newDeps(t *testing.T, mock *providers.MockClient) Deps {
	t.Helper()
	db, err := store.Open(context.Background(), store.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := providers.NewRegistry()
	reg.RegisterLLM("mock", mock)

	settings := config.NewStore(db)
	provider := "mock"
	_, err = config.SaveLLMSettings(context.Background(), settings, config.LLMSettingsPatch{Provider: &provider})
	require.NoError(t, err)

	return Deps{
		Providers: reg,
		Settings:  settings,
		Config: func() *config.Config {
			cfg := config.DefaultConfig()
			cfg.Refine.Iterations = 2
			return cfg
		},
		Timer: instantTimer{},
	}
}

func TestBuild_UsesSettings(t *testing.T) {
	mock := providers.NewMockClient()
	deps := newDeps(t, mock)

	rt, err := Build(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, "mock", rt.Provider)
	assert.Equal(t, config.DefaultLLMSettings().Model, rt.Settings.Model)
	assert.Equal(t, 2, rt.Iterations)
	assert.Len(t, rt.Agents.List(), len(agents.Names()))
}

func TestBuild_Override(t *testing.T) {
	deps := newDeps(t, providers.NewMockClient())
	model := "gpt-4o-mini"
	deps.Override = &config.LLMSettingsPatch{Model: &model}

	rt, err := Build(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, model, rt.Settings.Model)

	stored, err := config.LoadLLMSettings(context.Background(), deps.Settings)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLLMSettings().Model, stored.Model)

	temp := 2.0
	deps.Override = &config.LLMSettingsPatch{Temperature: &temp}
	_, err = Build(context.Background(), deps)
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestBuild_UnknownProvider(t *testing.T) {
	deps := newDeps(t, providers.NewMockClient())
	deps.Providers = providers.NewRegistry()

	_, err := Build(context.Background(), deps)
	assert.ErrorIs(t, err, ErrNoProvider)

	deps.Providers = nil
	_, err = Build(context.Background(), deps)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRuntime_Execute(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection("happy")),
	}
	rt, err := Build(context.Background(), newDeps(t, mock))
	require.NoError(t, err)

	res, err := rt.Execute(context.Background(), "journal-reflection", json.RawMessage(`{"journalEntry":"Good day, followed the plan."}`))
	require.NoError(t, err)
	require.True(t, res.IsSuccess(), "result: %+v", res)

	var out journal_reflection.Result
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Equal(t, "happy", out.Mood)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, config.DefaultLLMSettings().Model, reqs[0].Model)
}

func TestRuntime_ExecuteUnknownAgent(t *testing.T) {
	rt, err := Build(context.Background(), newDeps(t, providers.NewMockClient()))
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), "horoscope", json.RawMessage(`{"journalEntry":"x"}`))
	assert.ErrorIs(t, err, agents.ErrUnknownAgent)
}

func TestRuntime_RefineDefaultsIterations(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection("neutral")),
		providers.MockToolResponse(refine.MetaTool().Name, critique(4)),
		providers.MockToolResponse(journal_reflection.ToolName, reflection("happy")),
		providers.MockToolResponse(refine.MetaTool().Name, critique(8)),
	}
	rt, err := Build(context.Background(), newDeps(t, mock))
	require.NoError(t, err)

	out, err := rt.Refine(context.Background(), "journal_reflection", agents.RefineRequest{
		Params: json.RawMessage(`{"journalEntry":"Mixed day."}`),
	})
	require.NoError(t, err)
	require.Len(t, out.IterationResults, 2)
	assert.Equal(t, 1, out.FinalIterationIndex)
	assert.Equal(t, []string{"Be more specific."}, out.ImprovementAnalysis)
	assert.EqualValues(t, 4, mock.RequestCount())
}
