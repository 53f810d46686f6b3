package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newAssignCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "assign <experiment-id> <user-id>",
		Short: "Assign a user to a variant",
		Long: `Assign a user to a variant of an active experiment. A user who was
already assigned gets the same variant back.

Example:
  xgoat assign hero-headline user-123`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expID, userID := args[0], args[1]
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				a, err := e.Assign(ctx, userID, expID)
				if err != nil {
					return fmt.Errorf("failed to assign: %w", err)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, a)
				}
				if a == nil {
					fmt.Fprintf(out, "User '%s' is not eligible for '%s'\n", userID, expID)
					return nil
				}
				fmt.Fprintf(out, "User '%s' -> %s (%s)\n", a.UserID, a.VariantID, a.VariantName)
				fmt.Fprintf(out, "Assigned: %s\n", a.AssignedAt.Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assignment as JSON")
	return cmd
}
