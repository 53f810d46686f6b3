package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newCreateCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "create <file.yaml|file.json>",
		Short: "Register an experiment from a definition file",
		Long: `Register an experiment from a YAML or JSON definition file.

Weights and traffic allocation are percentages. The experiment starts as
DRAFT unless the file sets a status or --activate is given.

Example definition:
  id: hero-headline
  name: Hero headline
  trafficAllocation: 100
  variants:
    - id: control
      name: Ship Faster
      weight: 50
      config:
        headline: Ship Faster
    - id: test
      name: Build Better
      weight: 50
      config:
        headline: Build Better

Examples:
  xgoat create hero.yaml
  xgoat create hero.json --activate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := readExperimentFile(args[0])
			if err != nil {
				return err
			}
			if err := experiment.CheckDefinition(exp); err != nil {
				return fmt.Errorf("invalid definition: %w", err)
			}

			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				if err := e.Registry().Register(ctx, exp); err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}
				// A definition may already be ACTIVE.
				if activate && exp.Status != experiment.StatusActive {
					if err := e.Registry().Activate(ctx, exp.ID); err != nil {
						return fmt.Errorf("failed to activate experiment: %w", err)
					}
				}

				stored, err := e.Registry().Get(ctx, exp.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' (%s) with %d variants:\n", stored.ID, stored.Status, len(stored.Variants))
				for _, v := range stored.Variants {
					fmt.Fprintf(out, "  %s: %s (%g%%)\n", v.ID, v.Name, v.Weight)
				}
				fmt.Fprintf(out, "  Traffic: %g%%\n", stored.TrafficAllocation)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "activate the experiment right away")
	return cmd
}

// readExperimentFile decodes a definition by file extension. Anything that
// is not .json is read as YAML.
func readExperimentFile(path string) (*experiment.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	var exp experiment.Experiment
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &exp)
	default:
		err = yaml.Unmarshal(data, &exp)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &exp, nil
}
