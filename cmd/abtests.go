package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/risksure/outreach-cli/internal/abtest"
)

var abtestsCmd = &cobra.Command{
	Use:   "abtests",
	Short: "Show subject line experiment results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		outcomes, err := abtest.New(st).Results(ctx)
		if err != nil {
			return eris.Wrap(err, "abtest results")
		}
		return printJSON(outcomes)
	},
}

func init() {
	rootCmd.AddCommand(abtestsCmd)
}
