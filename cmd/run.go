package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily outreach pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		// A stuck provider must not hang the run forever.
		runCtx, cancel := context.WithTimeout(ctx, cfg.Outreach.RunTimeout())
		defer cancel()

		result, err := env.Pipeline.Run(runCtx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("daily run complete",
			zap.String("date", result.Date),
			zap.Int("validated", result.Validated),
			zap.Int("enriched", result.Enriched),
			zap.Int("emails_sent", result.EmailsSent),
			zap.Int("nurture_sent", result.NurtureSent),
			zap.Int("lead_errors", len(result.Errors)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
