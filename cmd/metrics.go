package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var metricsDate string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the daily metrics row for a date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		date := metricsDate
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}

		metrics, err := st.GetDailyMetrics(ctx, date)
		if err != nil {
			return eris.Wrapf(err, "metrics for %s", date)
		}
		return printJSON(metrics)
	},
}

func init() {
	metricsCmd.Flags().StringVar(&metricsDate, "date", "", "date in YYYY-MM-DD (default today)")
	rootCmd.AddCommand(metricsCmd)
}
