package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newConvertCmd() *cobra.Command {
	var (
		variant   string
		eventType string
		value     float64
	)

	cmd := &cobra.Command{
		Use:   "convert <experiment-id> <user-id>",
		Short: "Record a conversion",
		Long: `Record a conversion for a user's variant.

Examples:
  xgoat convert hero-headline user-123 --variant test --type signup
  xgoat convert hero-headline user-123 --variant test --type purchase --value 49.99`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := engine.ConversionEvent{
				ExperimentID: args[0],
				UserID:       args[1],
				VariantID:    variant,
				EventType:    eventType,
			}
			if cmd.Flags().Changed("value") {
				ev.Value = &value
			}

			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				if err := e.RecordConversion(ctx, ev); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for '%s' on %s/%s\n", eventType, ev.UserID, ev.ExperimentID, variant)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "variant the user converted on")
	cmd.Flags().StringVar(&eventType, "type", "conversion", "conversion type, e.g. signup")
	cmd.Flags().Float64Var(&value, "value", 0, "optional conversion value")
	cmd.MarkFlagRequired("variant")
	return cmd
}
