package endpoints

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradepsych/insight/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Agent endpoints
		&ListAgentsEndpoint{},
		&ExecuteAgentEndpoint{},
		&RefineAgentEndpoint{},

		// Settings endpoints
		&GetLLMSettingsEndpoint{},
		&UpdateLLMSettingsEndpoint{},
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&LLMCallCountsEndpoint{},
		&GetLLMCallEndpoint{},

		// Metrics endpoints
		&MetricsSummaryEndpoint{},
		&PrometheusEndpoint{Gatherer: cfg.Gatherer},
	}
}

// AgentCommands returns endpoints grouped under the "agents" subcommand.
func AgentCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListAgentsEndpoint{},
		&ExecuteAgentEndpoint{},
		&RefineAgentEndpoint{},
	}
}

// SettingsCommands returns endpoints for settings operations.
// This groups settings-related commands under "settings" subcommand.
func SettingsCommands() []api.Endpoint {
	return []api.Endpoint{
		&GetLLMSettingsEndpoint{},
		&UpdateLLMSettingsEndpoint{},
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},
	}
}

// LLMCallCommands returns endpoints for LLM call history operations.
// This groups llmcall-related commands under "llmcalls" subcommand.
func LLMCallCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},
	}
}

// MetricsCommands returns endpoints grouped under the "metrics" subcommand.
func MetricsCommands() []api.Endpoint {
	return []api.Endpoint{
		&MetricsSummaryEndpoint{},
		&PrometheusEndpoint{},
	}
}
