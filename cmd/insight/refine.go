package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/agents"
	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/refine"
	"github.com/tradepsych/insight/internal/server/endpoints"
)

var (
	refineEntry      string
	refineIterations int
	refineResume     string
	refineSave       bool
	refineOverrides  overrideFlags
)

var refineCmd = &cobra.Command{
	Use:   "refine <agent>",
	Short: "Progressively refine an agent's analysis",
	Long: `Run an agent repeatedly. After each round a critic scores the result and
its guidance is added to the next round's prompt. The best-scoring result
is reported along with every iteration.

--resume continues a saved run: its iterations are kept and only the
remaining rounds run. --save writes the run to the home runs directory.

Examples:
  insight refine sentiment --entry @today.txt --iterations 4
  insight refine journal_reflection --entry @today.txt --save
  insight refine journal_reflection --entry @today.txt --iterations 5 \
      --resume ~/.insight/data/runs/<run-id>.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text, err := endpoints.ReadEntry(refineEntry)
		if err != nil {
			return err
		}
		params, err := json.Marshal(map[string]string{"journalEntry": text})
		if err != nil {
			return err
		}
		req := agents.RefineRequest{Params: params, Iterations: refineIterations}

		if refineResume != "" {
			data, err := os.ReadFile(refineResume)
			if err != nil {
				return fmt.Errorf("read saved run: %w", err)
			}
			var saved refine.ProgressiveResult[json.RawMessage]
			if err := json.Unmarshal(data, &saved); err != nil {
				return fmt.Errorf("decode saved run: %w", err)
			}
			req.Previous = saved.IterationResults
		}

		env, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rt, err := env.runtime(ctx, refineOverrides.patch(cmd.Flags().Changed))
		if err != nil {
			return err
		}

		out, err := rt.Refine(ctx, args[0], req)
		if err != nil {
			return err
		}

		if refineSave {
			path := env.home.RunPath(out.RunID)
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved run to %s\n", path)
		}
		return api.Output(out)
	},
}

func init() {
	refineCmd.Flags().StringVar(&refineEntry, "entry", "-", "Journal entry text, @file to read a file, or - for stdin")
	refineCmd.Flags().IntVar(&refineIterations, "iterations", 0, "Iterations to run (0 uses refine.iterations from config)")
	refineCmd.Flags().StringVar(&refineResume, "resume", "", "Saved run to continue")
	refineCmd.Flags().BoolVar(&refineSave, "save", false, "Save the run under the home runs directory")
	refineCmd.Flags().StringVar(&refineOverrides.model, "model", "", "Model override for this run")
	refineCmd.Flags().StringVar(&refineOverrides.provider, "provider", "", "Provider override for this run")
	refineCmd.Flags().Float64Var(&refineOverrides.temperature, "temperature", 0, "Temperature override for this run")

	rootCmd.AddCommand(refineCmd)
}
