package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestLLMSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LLMSettings)
		wantErr bool
	}{
		{"defaults", func(*LLMSettings) {}, false},
		{"temperature zero", func(s *LLMSettings) { s.Temperature = 0 }, false},
		{"temperature one", func(s *LLMSettings) { s.Temperature = 1 }, false},
		{"temperature above one", func(s *LLMSettings) { s.Temperature = 1.2 }, true},
		{"negative temperature", func(s *LLMSettings) { s.Temperature = -0.1 }, true},
		{"no retries", func(s *LLMSettings) { s.MaxRetries = 0 }, false},
		{"negative retries", func(s *LLMSettings) { s.MaxRetries = -1 }, true},
		{"negative delay", func(s *LLMSettings) { s.RetryDelay = -5 }, true},
		{"empty model", func(s *LLMSettings) { s.Model = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultLLMSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLLMSettings_RetryPolicy(t *testing.T) {
	s := DefaultLLMSettings()
	s.MaxRetries = 4
	s.RetryDelay = 250

	p := s.RetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.InitialDelay)
	require.NoError(t, p.Validate())

	s.MaxRetries = 0
	s.RetryDelay = 60_000
	p = s.RetryPolicy()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.GreaterOrEqual(t, p.MaxDelay, p.InitialDelay)
	require.NoError(t, p.Validate())
}

func TestLoadLLMSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults without store", func(t *testing.T) {
		s, err := LoadLLMSettings(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultLLMSettings(), s)
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("INSIGHT_LLM_MODEL", "env-model")
		t.Setenv("INSIGHT_LLM_TEMPERATURE", "0.25")
		t.Setenv("INSIGHT_LLM_MAX_RETRIES", "5")

		s, err := LoadLLMSettings(ctx, newMockStore())
		require.NoError(t, err)
		assert.Equal(t, "env-model", s.Model)
		assert.Equal(t, 0.25, s.Temperature)
		assert.Equal(t, 5, s.MaxRetries)
		assert.Equal(t, 500, s.RetryDelay)
	})

	t.Run("store wins over environment", func(t *testing.T) {
		t.Setenv("INSIGHT_LLM_MODEL", "env-model")
		store := newMockStore()
		store.Set(ctx, KeyLLMModel, "stored-model", "")
		store.Set(ctx, KeyLLMRetryDelay, float64(900), "")

		s, err := LoadLLMSettings(ctx, store)
		require.NoError(t, err)
		assert.Equal(t, "stored-model", s.Model)
		assert.Equal(t, 900, s.RetryDelay)
	})

	t.Run("unparseable environment value", func(t *testing.T) {
		t.Setenv("INSIGHT_LLM_TEMPERATURE", "warm")
		_, err := LoadLLMSettings(ctx, newMockStore())
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("out of range stored value", func(t *testing.T) {
		store := newMockStore()
		store.Set(ctx, KeyLLMTemperature, 3.0, "")
		_, err := LoadLLMSettings(ctx, store)
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("store error", func(t *testing.T) {
		store := newMockStore()
		store.err = errors.New("boom")
		_, err := LoadLLMSettings(ctx, store)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidSettings)
	})
}

func TestSaveLLMSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("persists patch", func(t *testing.T) {
		store := newSQLStore(t)
		saved, err := SaveLLMSettings(ctx, store, LLMSettingsPatch{
			Temperature:   ptr(0.1),
			SystemMessage: ptr("Be brief."),
		})
		require.NoError(t, err)
		assert.Equal(t, 0.1, saved.Temperature)
		assert.Equal(t, "Be brief.", saved.SystemMessage)
		assert.Equal(t, DefaultLLMSettings().Model, saved.Model)

		loaded, err := LoadLLMSettings(ctx, store)
		require.NoError(t, err)
		assert.Equal(t, saved, loaded)
	})

	t.Run("rejects invalid patch", func(t *testing.T) {
		store := newMockStore()
		_, err := SaveLLMSettings(ctx, store, LLMSettingsPatch{Temperature: ptr(1.5)})
		assert.ErrorIs(t, err, ErrInvalidSettings)
		assert.Empty(t, store.data)
	})

	t.Run("repairs invalid stored value", func(t *testing.T) {
		store := newMockStore()
		store.Set(ctx, KeyLLMMaxRetries, -3, "")
		saved, err := SaveLLMSettings(ctx, store, LLMSettingsPatch{MaxRetries: ptr(2)})
		require.NoError(t, err)
		assert.Equal(t, 2, saved.MaxRetries)
	})
}

func TestValidateEntry(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()

	tests := []struct {
		key     string
		value   any
		wantErr bool
	}{
		{KeyLLMTemperature, 0.2, false},
		{KeyLLMTemperature, "0.9", false},
		{KeyLLMTemperature, 1.5, true},
		{KeyLLMMaxRetries, float64(4), false},
		{KeyLLMMaxRetries, 2.5, true},
		{KeyLLMRetryDelay, -1, true},
		{KeyLLMModel, "", true},
		{KeyLLMModel, 42, true},
		{KeyLLMProvider, "anthropic", false},
		{"llm.top_p", 0.9, true},
		{"providers.llm.openai.model", 123, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateEntry(ctx, store, tt.key, tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Empty(t, store.data, "validation must not write")
}
