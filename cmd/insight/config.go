package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", h.ConfigPath())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with API keys redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h, newLogger(cmd.ErrOrStderr(), slog.LevelWarn))
		if err != nil {
			return err
		}
		cfg := *mgr.Get()
		cfg.LLMProviders = make(map[string]config.LLMProviderCfg, len(mgr.Get().LLMProviders))
		for name, p := range mgr.Get().LLMProviders {
			if p.APIKey != "" {
				p.APIKey = "<redacted>"
			}
			cfg.LLMProviders[name] = p
		}
		return api.Output(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
