package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user attributes used for targeting",
	}
	cmd.AddCommand(newUsersSetCmd())
	return cmd
}

func newUsersSetCmd() *cobra.Command {
	var (
		points   float64
		userType string
	)

	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Create or update a user's points and type",
		Long: `Create or update a user's points and type. Experiments with a target
audience only admit users that are known here.

Example:
  xgoat users set user-123 --points 250 --type premium`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := store.User{ID: args[0], Points: points, UserType: userType}
			return withEngine(cmd, func(ctx context.Context, _ *engine.Engine, s store.Store) error {
				if err := s.UpsertUser(ctx, u); err != nil {
					return fmt.Errorf("failed to save user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved user '%s' (points %g, type %q)\n", u.ID, u.Points, u.UserType)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&points, "points", 0, "user points")
	cmd.Flags().StringVar(&userType, "type", "", "user type, e.g. premium")
	return cmd
}
