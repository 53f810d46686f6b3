package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the xgoat command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xgoat",
		Short: "xgoat - a self-hosted A/B experimentation engine",
		Long: `xgoat assigns users to experiment variants, records conversions and
tells you which variant is winning.

Running without a subcommand starts the server (same as 'xgoat serve').`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
		RunE: runServe, // Default action is to start server
	}

	// Global flags
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides db_path)")
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults to $XGOAT_CONFIG)")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newShowCmd(),
		newActivateCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newCompleteCmd(),
		newAssignCmd(),
		newConvertCmd(),
		newResultsCmd(),
		newExportCmd(),
		newUsersCmd(),
		newServeCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
