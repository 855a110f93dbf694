package main

import (
	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Insight server via HTTP.

These commands require a running server (insight serve).
Use --server to specify a custom server URL.

Examples:
  insight api health                                   # Check server health
  insight api agents list                              # List agents
  insight api agents execute sentiment --entry @day.txt
  insight api settings set-llm --model gpt-4o-mini     # Change the model`,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

// group builds a subcommand whose children call eps.
func group(use, short string, eps []api.Endpoint) *cobra.Command {
	r := api.NewRegistry()
	for _, ep := range eps {
		r.Register(ep)
	}
	return r.BuildCommands(use, short, getServerURL)
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(group("agents", "Agent commands", endpoints.AgentCommands()))
	apiCmd.AddCommand(group("settings", "Configuration settings commands", endpoints.SettingsCommands()))
	apiCmd.AddCommand(group("llmcalls", "LLM call history commands", endpoints.LLMCallCommands()))
	apiCmd.AddCommand(group("metrics", "Invocation metrics commands", endpoints.MetricsCommands()))

	rootCmd.AddCommand(apiCmd)
}
