package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/internal/store"
	"github.com/risksure/outreach-cli/internal/warming"
)

// localStore opens the store for commands that need no API clients.
func localStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("local"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var warmingCmd = &cobra.Command{
	Use:   "warming",
	Short: "Inspect and control the sending ramp",
}

var warmingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current warming state and today's budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		governor := warming.New(st)
		if _, err := governor.Initialize(ctx); err != nil {
			return eris.Wrap(err, "init warming")
		}

		status, err := governor.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "warming status")
		}
		return printJSON(status)
	},
}

var warmingPauseReason string

var warmingPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause all sending",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		governor := warming.New(st)
		if err := governor.Pause(ctx, warmingPauseReason); err != nil {
			return eris.Wrap(err, "pause warming")
		}
		zap.L().Info("warming paused", zap.String("reason", warmingPauseReason))
		return nil
	},
}

var warmingUnpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Resume sending after a pause",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		governor := warming.New(st)
		if err := governor.Unpause(ctx); err != nil {
			return eris.Wrap(err, "unpause warming")
		}
		zap.L().Info("warming unpaused")
		return nil
	},
}

var (
	warmingDailyLimit int
	warmingMaxLimit   int
	warmingIncrement  int
)

var warmingSetLimitsCmd = &cobra.Command{
	Use:   "set-limits",
	Short: "Override the ramp limits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var daily, maxLimit, increment *int
		if cmd.Flags().Changed("daily") {
			daily = &warmingDailyLimit
		}
		if cmd.Flags().Changed("max") {
			maxLimit = &warmingMaxLimit
		}
		if cmd.Flags().Changed("increment") {
			increment = &warmingIncrement
		}
		if daily == nil && maxLimit == nil && increment == nil {
			return eris.New("nothing to update: pass --daily, --max, or --increment")
		}

		governor := warming.New(st)
		if err := governor.UpdateLimits(ctx, daily, maxLimit, increment); err != nil {
			return eris.Wrap(err, "update warming limits")
		}

		status, err := governor.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "warming status")
		}
		return printJSON(status)
	},
}

func init() {
	warmingPauseCmd.Flags().StringVar(&warmingPauseReason, "reason", "manual pause", "reason recorded with the pause")
	warmingSetLimitsCmd.Flags().IntVar(&warmingDailyLimit, "daily", 0, "current daily limit")
	warmingSetLimitsCmd.Flags().IntVar(&warmingMaxLimit, "max", 0, "maximum daily limit")
	warmingSetLimitsCmd.Flags().IntVar(&warmingIncrement, "increment", 0, "daily increment amount")

	warmingCmd.AddCommand(warmingStatusCmd, warmingPauseCmd, warmingUnpauseCmd, warmingSetLimitsCmd)
	rootCmd.AddCommand(warmingCmd)
}
