package config

// Config holds insight configuration.
// Stored at: ~/.insight/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers" json:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults" json:"defaults"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server" json:"server"`
	Refine       RefineCfg                 `mapstructure:"refine" yaml:"refine" json:"refine"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type" json:"type"`                                 // "openrouter", "openai", "anthropic", "mock"
	Model     string  `mapstructure:"model" yaml:"model" json:"model"`                              // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`                        // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"` // Optional endpoint override
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`               // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider" json:"llm_provider"` // Default LLM provider
	// Mode is "tool" (forced function call) or "response_format" (json_schema).
	Mode string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port string `mapstructure:"port" yaml:"port" json:"port"`
}

// RefineCfg configures progressive refinement.
type RefineCfg struct {
	Iterations int `mapstructure:"iterations" yaml:"iterations" json:"iterations"`
	// TokenBudget caps enhanced prompts. Zero disables truncation.
	TokenBudget int `mapstructure:"token_budget" yaml:"token_budget" json:"token_budget"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:      "openrouter",
				Model:     "openai/gpt-4o",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 5.0,
				Enabled:   true,
			},
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 5.0,
				Enabled:   true,
			},
			"anthropic": {
				Type:      "anthropic",
				Model:     "claude-sonnet-4-5",
				APIKey:    "${ANTHROPIC_API_KEY}",
				RateLimit: 5.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
			Mode:        "tool",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Refine: RefineCfg{
			Iterations:  3,
			TokenBudget: 6000,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Addr returns the host:port the server listens on.
func (s ServerCfg) Addr() string {
	return s.Host + ":" + s.Port
}
