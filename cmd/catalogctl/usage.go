package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/partscout/internal/budget"
)

func newUsageCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show LLM token usage for today and this month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer store.Close()

			tz, err := time.LoadLocation(a.cfg.Timezone)
			if err != nil {
				tz = time.UTC
			}

			ledger, err := budget.NewStore(store.DB(), tz)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			today, err := ledger.Totals(ctx, ledger.Day())
			if err != nil {
				return err
			}
			month, err := ledger.Totals(ctx, ledger.Month())
			if err != nil {
				return err
			}
			lines, err := ledger.Breakdown(ctx, ledger.Month())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"today":     today,
					"month":     month,
					"breakdown": lines,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "today: %d requests, %d in / %d out tokens, $%.4f\n",
				today.Requests, today.InputTokens, today.OutputTokens, today.CostUSD)
			fmt.Fprintf(out, "month: %d requests, %d in / %d out tokens, $%.4f\n",
				month.Requests, month.InputTokens, month.OutputTokens, month.CostUSD)
			if a.cfg.Budget.DailyLimit > 0 {
				fmt.Fprintf(out, "daily limit: %d tokens (%d left)\n", a.cfg.Budget.DailyLimit, max(0, a.cfg.Budget.DailyLimit-today.Tokens()))
			}
			for _, l := range lines {
				fmt.Fprintf(out, "  %-32s %-9s %5d requests  $%.4f\n", l.Model, l.Purpose, l.Requests, l.CostUSD)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
