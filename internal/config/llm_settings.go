package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradepsych/insight/internal/retry"
)

// Settings keys for the LLM runtime settings.
const (
	KeyLLMModel         = "llm.model"
	KeyLLMTemperature   = "llm.temperature"
	KeyLLMMaxRetries    = "llm.max_retries"
	KeyLLMRetryDelay    = "llm.retry_delay"
	KeyLLMSystemMessage = "llm.system_message"
	KeyLLMProvider      = "llm.provider"
)

// ErrInvalidSettings is returned when LLM settings are out of range.
var ErrInvalidSettings = errors.New("invalid llm settings")

// LLMSettings are the runtime knobs every agent invocation reads.
type LLMSettings struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxRetries  int     `json:"maxRetries" yaml:"maxRetries"`
	// RetryDelay is the initial backoff in milliseconds.
	RetryDelay    int    `json:"retryDelay" yaml:"retryDelay"`
	SystemMessage string `json:"systemMessage" yaml:"systemMessage"`
	Provider      string `json:"provider" yaml:"provider"`
}

// LLMSettingsPatch is a partial update. Nil fields are left unchanged.
type LLMSettingsPatch struct {
	Model         *string  `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxRetries    *int     `json:"maxRetries,omitempty"`
	RetryDelay    *int     `json:"retryDelay,omitempty"`
	SystemMessage *string  `json:"systemMessage,omitempty"`
	Provider      *string  `json:"provider,omitempty"`
}

// DefaultLLMSettings returns the built-in settings.
func DefaultLLMSettings() LLMSettings {
	return LLMSettings{
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxRetries:  3,
		RetryDelay:  500,
		Provider:    "openrouter",
	}
}

// Validate checks field ranges.
func (s LLMSettings) Validate() error {
	switch {
	case s.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidSettings)
	case s.Temperature < 0 || s.Temperature > 1:
		return fmt.Errorf("%w: temperature %g outside [0, 1]", ErrInvalidSettings, s.Temperature)
	case s.MaxRetries < 0:
		return fmt.Errorf("%w: maxRetries %d < 0", ErrInvalidSettings, s.MaxRetries)
	case s.RetryDelay < 0:
		return fmt.Errorf("%w: retryDelay %d < 0", ErrInvalidSettings, s.RetryDelay)
	}
	return nil
}

// RetryPolicy maps the settings onto a retry policy: MaxRetries counts
// retries after the first attempt and RetryDelay seeds the backoff.
func (s LLMSettings) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = s.MaxRetries + 1
	p.InitialDelay = time.Duration(s.RetryDelay) * time.Millisecond
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// Apply returns s with the patch applied.
func (s LLMSettings) Apply(p LLMSettingsPatch) LLMSettings {
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	if p.RetryDelay != nil {
		s.RetryDelay = *p.RetryDelay
	}
	if p.SystemMessage != nil {
		s.SystemMessage = *p.SystemMessage
	}
	if p.Provider != nil {
		s.Provider = *p.Provider
	}
	return s
}

// envKeys maps a settings key to its fallback environment variable,
// e.g. llm.max_retries -> INSIGHT_LLM_MAX_RETRIES.
var envKeys = map[string]string{
	KeyLLMModel:         EnvPrefix + "_LLM_MODEL",
	KeyLLMTemperature:   EnvPrefix + "_LLM_TEMPERATURE",
	KeyLLMMaxRetries:    EnvPrefix + "_LLM_MAX_RETRIES",
	KeyLLMRetryDelay:    EnvPrefix + "_LLM_RETRY_DELAY",
	KeyLLMSystemMessage: EnvPrefix + "_LLM_SYSTEM_MESSAGE",
	KeyLLMProvider:      EnvPrefix + "_LLM_PROVIDER",
}

// LoadLLMSettings reads the llm.* entries from store. A key missing from
// the store falls back to its INSIGHT_LLM_* environment variable, then to
// DefaultLLMSettings. A nil store reads environment and defaults only.
func LoadLLMSettings(ctx context.Context, store Store) (LLMSettings, error) {
	s := DefaultLLMSettings()
	entries := map[string]Entry{}
	if store != nil {
		var err error
		entries, err = store.GetByPrefix(ctx, "llm.")
		if err != nil {
			return s, fmt.Errorf("failed to load llm settings: %w", err)
		}
	}

	lookup := func(key string) (any, bool) {
		if e, ok := entries[key]; ok && e.Value != nil {
			return e.Value, true
		}
		if v, ok := os.LookupEnv(envKeys[key]); ok {
			return v, true
		}
		return nil, false
	}

	var errs []error
	if v, ok := lookup(KeyLLMModel); ok {
		s.Model = fmt.Sprint(v)
	}
	if v, ok := lookup(KeyLLMSystemMessage); ok {
		s.SystemMessage = fmt.Sprint(v)
	}
	if v, ok := lookup(KeyLLMProvider); ok {
		s.Provider = fmt.Sprint(v)
	}
	if v, ok := lookup(KeyLLMTemperature); ok {
		f, err := toFloat(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyLLMTemperature, err))
		} else {
			s.Temperature = f
		}
	}
	if v, ok := lookup(KeyLLMMaxRetries); ok {
		f, err := toFloat(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyLLMMaxRetries, err))
		} else {
			s.MaxRetries = int(f)
		}
	}
	if v, ok := lookup(KeyLLMRetryDelay); ok {
		f, err := toFloat(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyLLMRetryDelay, err))
		} else {
			s.RetryDelay = int(f)
		}
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// SaveLLMSettings applies patch over the current settings, validates the
// result and persists every llm.* key. Nothing is written when validation fails.
func SaveLLMSettings(ctx context.Context, store Store, patch LLMSettingsPatch) (LLMSettings, error) {
	current, err := LoadLLMSettings(ctx, store)
	if err != nil && !errors.Is(err, ErrInvalidSettings) {
		return current, err
	}
	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		return current, err
	}

	values := map[string]any{
		KeyLLMModel:         next.Model,
		KeyLLMTemperature:   next.Temperature,
		KeyLLMMaxRetries:    next.MaxRetries,
		KeyLLMRetryDelay:    next.RetryDelay,
		KeyLLMSystemMessage: next.SystemMessage,
		KeyLLMProvider:      next.Provider,
	}
	for _, key := range []string{KeyLLMModel, KeyLLMTemperature, KeyLLMMaxRetries, KeyLLMRetryDelay, KeyLLMSystemMessage, KeyLLMProvider} {
		if err := store.Set(ctx, key, values[key], ""); err != nil {
			return current, fmt.Errorf("failed to save %s: %w", key, err)
		}
	}
	return next, nil
}

// ValidateEntry checks a single raw setting before it is stored. Keys
// outside llm.* are accepted as is; an llm.* value is applied over the
// current settings and the result must validate.
func ValidateEntry(ctx context.Context, store Store, key string, value any) error {
	if !strings.HasPrefix(key, "llm.") {
		return nil
	}
	patch, err := patchFor(key, value)
	if err != nil {
		return err
	}
	current, err := LoadLLMSettings(ctx, store)
	if err != nil && !errors.Is(err, ErrInvalidSettings) {
		return err
	}
	return current.Apply(patch).Validate()
}

func patchFor(key string, value any) (LLMSettingsPatch, error) {
	var p LLMSettingsPatch
	num := func() (float64, error) {
		f, err := toFloat(value)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidSettings, key, err)
		}
		return f, nil
	}
	switch key {
	case KeyLLMModel, KeyLLMSystemMessage, KeyLLMProvider:
		str, ok := value.(string)
		if !ok {
			return p, fmt.Errorf("%w: %s must be a string", ErrInvalidSettings, key)
		}
		switch key {
		case KeyLLMModel:
			p.Model = &str
		case KeyLLMSystemMessage:
			p.SystemMessage = &str
		default:
			p.Provider = &str
		}
	case KeyLLMTemperature:
		f, err := num()
		if err != nil {
			return p, err
		}
		p.Temperature = &f
	case KeyLLMMaxRetries, KeyLLMRetryDelay:
		f, err := num()
		if err != nil {
			return p, err
		}
		n := int(f)
		if float64(n) != f {
			return p, fmt.Errorf("%w: %s must be a whole number", ErrInvalidSettings, key)
		}
		if key == KeyLLMMaxRetries {
			p.MaxRetries = &n
		} else {
			p.RetryDelay = &n
		}
	default:
		return p, fmt.Errorf("%w: unknown key %s", ErrInvalidSettings, key)
	}
	return p, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
