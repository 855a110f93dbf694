package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default runtime settings.
// These are seeded into the settings table on first run.
func DefaultEntries() []Entry {
	d := DefaultLLMSettings()
	return []Entry{
		{
			Key:         KeyLLMModel,
			Value:       d.Model,
			Description: "Model used for every agent invocation",
		},
		{
			Key:         KeyLLMTemperature,
			Value:       d.Temperature,
			Description: "Sampling temperature (0-1)",
		},
		{
			Key:         KeyLLMMaxRetries,
			Value:       d.MaxRetries,
			Description: "Retries after the first attempt for rate limits and server faults",
		},
		{
			Key:         KeyLLMRetryDelay,
			Value:       d.RetryDelay,
			Description: "Initial retry delay in milliseconds, grown exponentially",
		},
		{
			Key:         KeyLLMSystemMessage,
			Value:       d.SystemMessage,
			Description: "System message override for every agent (empty keeps each agent's own)",
		},
		{
			Key:         KeyLLMProvider,
			Value:       d.Provider,
			Description: "Provider name from llm_providers used for agent calls",
		},
	}
}

// SeedDefaults seeds default configuration entries into the store.
// This is idempotent - existing entries are not overwritten. Keys whose
// INSIGHT_LLM_* environment variable is set are left unseeded so the
// environment keeps supplying them.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	seeded := 0
	skipped := 0

	for _, entry := range DefaultEntries() {
		if env, ok := envKeys[entry.Key]; ok {
			if _, set := os.LookupEnv(env); set {
				skipped++
				continue
			}
		}
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}
		if existing != nil {
			skipped++
			continue
		}
		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
