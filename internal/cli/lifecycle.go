package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Start a draft experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], "activate", (*experiment.Registry).Activate)
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Stop new assignments for an experiment",
		Long: `Stop new assignments for an experiment. Users who were already
assigned keep their variant once it resumes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], "pause", (*experiment.Registry).Pause)
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], "resume", (*experiment.Registry).Resume)
		},
	}
}

func newCompleteCmd() *cobra.Command {
	var winner string

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete an experiment, optionally declaring a winner",
		Long: `Complete an experiment. No further users are assigned once it is
completed.

Examples:
  xgoat complete hero-headline
  xgoat complete hero-headline --winner test`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], "complete", func(r *experiment.Registry, ctx context.Context, id string) error {
				return r.Complete(ctx, id, winner)
			})
		},
	}

	cmd.Flags().StringVar(&winner, "winner", "", "id of the winning variant")
	return cmd
}

func runTransition(cmd *cobra.Command, id, verb string, apply func(*experiment.Registry, context.Context, string) error) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
		if err := apply(e.Registry(), ctx, id); err != nil {
			return fmt.Errorf("failed to %s experiment: %w", verb, notFound(id, err))
		}

		exp, err := e.Registry().Get(ctx, id)
		if err != nil {
			return notFound(id, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s\n", exp.ID, exp.Status)
		if exp.WinnerVariantID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Winner: %s\n", exp.WinnerVariantID)
		}
		return nil
	})
}
