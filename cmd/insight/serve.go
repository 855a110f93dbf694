package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Insight server",
	Long: `Start the Insight HTTP server.

Settings and LLM call history live in the SQLite database under the home
directory. Providers come from the config file (reloaded on change) with
providers.llm.* settings layered on top.

The server provides:
  - /health, /ready, /status      - health checks
  - /api/agents                   - list, execute and refine agents
  - /api/settings, /api/settings/llm
  - /api/llmcalls, /api/metrics/summary
  - /metrics                      - Prometheus metrics

Examples:
  insight serve                    # Start on the configured address
  insight serve --port 3000        # Start on custom port
  insight serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := newLogger(os.Stdout, slog.LevelInfo)

		h, err := loadHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h, logger)
		if err != nil {
			return err
		}

		host, port := serveHost, servePort
		if !cmd.Flags().Changed("host") {
			host = cfgMgr.Get().Server.Host
		}
		if !cmd.Flags().Changed("port") {
			port = cfgMgr.Get().Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
