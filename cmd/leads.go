package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/risksure/outreach-cli/internal/model"
	"github.com/risksure/outreach-cli/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect the lead database",
}

var (
	leadsListStatus string
	leadsListTier   string
	leadsListLimit  int
	leadsListOffset int
)

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, optionally filtered by status or tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := st.ListLeads(ctx, store.LeadFilter{
			Status: model.LeadStatus(leadsListStatus),
			Tier:   model.Tier(leadsListTier),
			Limit:  leadsListLimit,
			Offset: leadsListOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list leads")
		}
		return printJSON(leads)
	},
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead counts by status and tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.LeadStats(ctx)
		if err != nil {
			return eris.Wrap(err, "lead stats")
		}
		return printJSON(stats)
	},
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <lead-id>",
	Short: "Show one lead with its email event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := localStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		lead, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}
		events, err := st.EventsByLead(ctx, lead.ID, 50)
		if err != nil {
			return eris.Wrap(err, "lead events")
		}

		return printJSON(struct {
			Lead   *model.Lead        `json:"lead"`
			Events []model.EmailEvent `json:"events"`
		}{lead, events})
	},
}

func init() {
	leadsListCmd.Flags().StringVar(&leadsListStatus, "status", "", "filter by status (new, ready, contacted, ...)")
	leadsListCmd.Flags().StringVar(&leadsListTier, "tier", "", "filter by tier (velocity, business, compliance)")
	leadsListCmd.Flags().IntVar(&leadsListLimit, "limit", 50, "maximum leads to return")
	leadsListCmd.Flags().IntVar(&leadsListOffset, "offset", 0, "pagination offset")

	leadsCmd.AddCommand(leadsListCmd, leadsStatsCmd, leadsShowCmd)
	rootCmd.AddCommand(leadsCmd)
}
