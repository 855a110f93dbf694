package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/home"
	"github.com/tradepsych/insight/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "Structured LLM analysis of trading journal entries",
	Long: `Insight runs schema-validated LLM agents over trading journal entries.

Each agent returns a structured result: a reflection (mood, highlights,
challenges, action items), a sentiment breakdown of trading emotions and
mental state, or a general analysis. Results can be progressively refined:
a critic scores each result and its guidance is fed back into the next run,
keeping the best-scoring result.

Agents run locally (insight run, insight refine) or behind the HTTP server
(insight serve) with settings and call history kept in SQLite.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.insight/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "insight home directory (default: ~/.insight)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (default depends on the command)",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// loadHome resolves the --home flag.
func loadHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// loadConfig reads --config, falling back to the home config file.
func loadConfig(h *home.Dir, logger *slog.Logger) (*config.Manager, error) {
	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	mgr, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}
	mgr.SetLogger(logger)
	return mgr, nil
}

// newLogger logs to w at --log-level, or at level when the flag is unset
// or unparseable.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if logLevel != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(logLevel)); err == nil {
			level = l
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
