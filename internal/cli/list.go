package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				return runList(ctx, cmd, e)
			})
		},
	}
}

func runList(ctx context.Context, cmd *cobra.Command, e *engine.Engine) error {
	exps, err := e.Registry().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(exps) == 0 {
		fmt.Fprintln(out, "No experiments yet.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Register one from a definition file:")
		fmt.Fprintln(out, "  xgoat create experiment.yaml")
		return nil
	}

	// Print table
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tTRAFFIC\tASSIGNED\tCONVERSIONS\tCREATED")

	for _, exp := range exps {
		perf, err := e.Performance(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to get performance for %s: %w", exp.ID, err)
		}

		assigned, conversions := 0, 0
		for _, p := range perf {
			assigned += p.Impressions
			conversions += p.Conversions
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g%%\t%s\t%s\t%s\n",
			exp.ID,
			exp.Name,
			exp.Status,
			len(exp.Variants),
			exp.TrafficAllocation,
			formatNumber(assigned),
			formatNumber(conversions),
			exp.CreatedAt.Format("2006-01-02"),
		)
	}

	return w.Flush()
}
