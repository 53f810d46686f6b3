package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an experiment definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				exp, err := e.Registry().Get(ctx, id)
				if err != nil {
					return notFound(id, err)
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), exp)
				}
				return printExperiment(cmd, exp)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the definition as JSON")
	return cmd
}

func printExperiment(cmd *cobra.Command, exp *experiment.Experiment) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "EXPERIMENT: %s\n", exp.ID)
	fmt.Fprintf(out, "NAME: %s\n", exp.Name)
	if exp.Description != "" {
		fmt.Fprintf(out, "DESCRIPTION: %s\n", exp.Description)
	}
	fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
	fmt.Fprintf(out, "TRAFFIC: %g%%\n", exp.TrafficAllocation)
	if exp.StartDate != nil || exp.EndDate != nil {
		fmt.Fprintf(out, "WINDOW: %s - %s\n", formatDate(exp.StartDate), formatDate(exp.EndDate))
	}
	if a := exp.TargetAudience; a != nil {
		fmt.Fprintf(out, "AUDIENCE: points %s - %s", formatBound(a.MinPoints), formatBound(a.MaxPoints))
		if len(a.UserTypes) > 0 {
			fmt.Fprintf(out, ", types %s", strings.Join(a.UserTypes, ","))
		}
		fmt.Fprintln(out)
	}
	if exp.WinnerVariantID != "" {
		fmt.Fprintf(out, "WINNER: %s\n", exp.WinnerVariantID)
	}
	fmt.Fprintf(out, "CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tNAME\tWEIGHT\tHEADLINE\tCTA")
	for _, v := range exp.Variants {
		fmt.Fprintf(w, "%s\t%s\t%g%%\t%s\t%s\n", v.ID, v.Name, v.Weight, v.Config.Headline, v.Config.CTAText)
	}
	return w.Flush()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(time.RFC3339)
}

func formatBound(v *float64) string {
	if v == nil {
		return "any"
	}
	return fmt.Sprintf("%g", *v)
}
