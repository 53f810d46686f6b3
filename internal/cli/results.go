package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/stats"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newResultsCmd() *cobra.Command {
	var controlID, testID string

	cmd := &cobra.Command{
		Use:   "results <experiment-id>",
		Short: "Show variant performance and significance",
		Long: `Show conversion rates with 95% confidence intervals for every variant,
then a two-sided significance test between a control and a test variant.

The first variant is the control unless --control is given. With more than
two variants and no --test, you are asked which one to compare.

Examples:
  xgoat results hero-headline
  xgoat results hero-headline --control control --test test`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				exp, err := e.Registry().Get(ctx, id)
				if err != nil {
					return notFound(id, err)
				}

				perf, err := e.Performance(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get performance: %w", err)
				}
				printPerformance(cmd, exp, perf)

				control, test, err := pickComparison(exp, controlID, testID)
				if err != nil {
					return err
				}

				result, err := e.Significance(ctx, id, control, test)
				if errors.Is(err, stats.ErrInsufficientData) {
					fmt.Fprintln(cmd.OutOrStdout(), "Statistical significance: Not enough data to compare yet")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to compute significance: %w", err)
				}
				printSignificance(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&controlID, "control", "", "control variant id")
	cmd.Flags().StringVar(&testID, "test", "", "test variant id")
	return cmd
}

// pickComparison fills in the control and test variants the user left out.
func pickComparison(exp *experiment.Experiment, controlID, testID string) (string, string, error) {
	if controlID == "" {
		controlID = exp.Variants[0].ID
	}
	if testID != "" {
		return controlID, testID, nil
	}

	var candidates []string
	for _, v := range exp.Variants {
		if v.ID != controlID {
			candidates = append(candidates, v.ID)
		}
	}
	if len(candidates) == 1 {
		return controlID, candidates[0], nil
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Compare against %s", controlID),
		Items: candidates,
		Size:  len(candidates),
	}
	_, testID, err := prompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("failed to pick a test variant: %w", err)
	}
	return controlID, testID, nil
}

func printPerformance(cmd *cobra.Command, exp *experiment.Experiment, perf []stats.VariantPerformance) {
	out := cmd.OutOrStdout()
	summary := stats.Summarize(perf)

	// Print header
	fmt.Fprintf(out, "EXPERIMENT: %s\n", exp.ID)
	fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
	fmt.Fprintln(out)

	// Print table header
	fmt.Fprintln(out, "VARIANT           USERS    CONVERSIONS  RATE     95% CI            AVG VALUE")
	fmt.Fprintln(out, strings.Repeat("─", 78))

	for _, p := range perf {
		indicator := ""
		if p.VariantID == summary.Leading && len(perf) > 1 && p.Conversions > 0 {
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", p.CILower*100, p.CIUpper*100)
		if p.Impressions == 0 {
			ciStr = "N/A"
		}

		// Truncate name if too long
		name := p.VariantID
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(out, "%-16s  %-7s  %-11s  %-7s  %-16s  %.2f%s\n",
			name,
			formatNumber(p.Impressions),
			formatNumber(p.Conversions),
			formatPercent(p.ConversionRate),
			ciStr,
			p.AvgValue,
			indicator,
		)
	}
	fmt.Fprintln(out)
}

func printSignificance(cmd *cobra.Command, r *stats.SignificanceResult) {
	out := cmd.OutOrStdout()

	uplift := "undefined (control has no conversions)"
	if r.UpliftDefined {
		uplift = fmt.Sprintf("%+.1f%%", r.Uplift)
	}

	fmt.Fprintf(out, "%s vs %s: z=%.3f p=%.4f uplift %s\n", r.TestVariant, r.ControlVariant, r.ZScore, r.PValue, uplift)
	if r.IsSignificant {
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" differs from \"%s\"\n",
			r.ConfidenceLevel, r.TestVariant, r.ControlVariant)
		return
	}
	fmt.Fprintf(out, "Statistical significance: not significant yet (%.1f%% confidence)\n", r.ConfidenceLevel)
}
