package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/server/endpoints"
)

var (
	runEntry     string
	runOverrides overrideFlags
)

var runCmd = &cobra.Command{
	Use:   "run <agent>",
	Short: "Run an agent once against a journal entry",
	Long: `Run one structured invocation locally and print the result.

Agents: journal_reflection, sentiment, general_analysis (dashes work too).
A failed invocation prints the error result and exits non-zero.

Examples:
  insight run sentiment --entry "Revenge traded after a stop-out."
  insight run journal-reflection --entry @today.txt -o json
  cat today.txt | insight run general_analysis`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text, err := endpoints.ReadEntry(runEntry)
		if err != nil {
			return err
		}

		env, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rt, err := env.runtime(ctx, runOverrides.patch(cmd.Flags().Changed))
		if err != nil {
			return err
		}

		params, err := json.Marshal(map[string]string{"journalEntry": text})
		if err != nil {
			return err
		}
		res, err := rt.Execute(ctx, args[0], params)
		if err != nil {
			return err
		}
		if err := api.Output(res); err != nil {
			return err
		}
		return res.Err()
	},
}

func init() {
	runCmd.Flags().StringVar(&runEntry, "entry", "-", "Journal entry text, @file to read a file, or - for stdin")
	runCmd.Flags().StringVar(&runOverrides.model, "model", "", "Model override for this run")
	runCmd.Flags().StringVar(&runOverrides.provider, "provider", "", "Provider override for this run")
	runCmd.Flags().Float64Var(&runOverrides.temperature, "temperature", 0, "Temperature override for this run")

	rootCmd.AddCommand(runCmd)
}
