package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the admin API token",
		Long: `Show the admin API token of the server.

Use this when you've scrolled past the startup message. Pass it as
"Authorization: Bearer <token>" or as ?token= on admin routes.

Example:
  xgoat token`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no token yet. Start the server with: xgoat serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: xgoat serve")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Admin token: %s\n", token)
	fmt.Fprintf(cmd.OutOrStdout(), "Example: curl -H 'Authorization: Bearer %s' %s/api/experiments\n", token, serverURL(cfg.Addr))
	return nil
}
