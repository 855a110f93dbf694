package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	or, ok := cfg.GetLLMProvider("openrouter")
	if !ok {
		t.Fatal("expected default openrouter provider")
	}
	if or.APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if cfg.Defaults.LLMProvider != "openrouter" {
		t.Errorf("default provider = %q", cfg.Defaults.LLMProvider)
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if len(cfg.EnabledLLMProviders()) != len(cfg.LLMProviders) {
		t.Error("expected every default provider enabled")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		if result := ResolveEnvVars("${TEST_API_KEY}"); result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("expands inside a larger string", func(t *testing.T) {
		t.Setenv("TEST_HOST", "llm.internal")
		if result := ResolveEnvVars("https://${TEST_HOST}/v1"); result != "https://llm.internal/v1" {
			t.Errorf("got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if result := ResolveEnvVars("literal-value"); result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "oa-key-123")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai":  {Type: "openai", Model: "gpt-4o", APIKey: "${TEST_OPENAI_KEY}", BaseURL: "http://localhost:9999/v1", RateLimit: 2, Enabled: true},
			"literal": {Type: "openrouter", APIKey: "direct-key"},
		},
	}

	rc := cfg.ToProviderRegistryConfig()
	openai := rc.LLMProviders["openai"]
	if openai.APIKey != "oa-key-123" {
		t.Errorf("expected oa-key-123, got %s", openai.APIKey)
	}
	if openai.BaseURL != "http://localhost:9999/v1" || openai.RateLimit != 2 || !openai.Enabled {
		t.Errorf("unexpected provider config %+v", openai)
	}
	if rc.LLMProviders["literal"].APIKey != "direct-key" {
		t.Errorf("expected direct-key, got %s", rc.LLMProviders["literal"].APIKey)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
llm_providers:
  local:
    type: mock
    enabled: true
defaults:
  llm_provider: local
server:
  port: "9191"
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if p, ok := cfg.GetLLMProvider("local"); !ok || p.Type != "mock" {
			t.Errorf("expected local mock provider, got %+v", cfg.LLMProviders)
		}
		if cfg.Defaults.LLMProvider != "local" {
			t.Errorf("expected local, got %s", cfg.Defaults.LLMProvider)
		}
		if cfg.Server.Port != "9191" {
			t.Errorf("expected port 9191, got %s", cfg.Server.Port)
		}
		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("expected default host, got %s", cfg.Server.Host)
		}
		if cfg.Refine.Iterations != 3 {
			t.Errorf("expected default iterations 3, got %d", cfg.Refine.Iterations)
		}
		if mgr.File() != configFile {
			t.Errorf("File() = %q", mgr.File())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("INSIGHT_SERVER_PORT", "7000")
		configFile := writeConfig(t, "server:\n  port: \"9191\"\n")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Server.Port; got != "7000" {
			t.Errorf("expected env port 7000, got %s", got)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		configFile := writeConfig(t, "server: [unterminated\n")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "defaults:\n  llm_provider: openrouter\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "defaults:\n  llm_provider: openrouter\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Defaults.LLMProvider
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "defaults:\n  llm_provider: initial_value\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Defaults.LLMProvider; got != "initial_value" {
		t.Errorf("initial value mismatch: expected initial_value, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Defaults.LLMProvider)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("defaults:\n  llm_provider: updated_value\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "updated_value" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Defaults.LLMProvider; got != "updated_value" {
		t.Errorf("config not updated: expected updated_value, got %s", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Insight configuration") {
		t.Error("expected header comment")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	if _, ok := mgr.Get().GetLLMProvider("anthropic"); !ok {
		t.Error("expected anthropic provider in written default")
	}
}
