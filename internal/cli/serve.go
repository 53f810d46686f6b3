package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/config"
	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/server"
	"github.com/gkobilansky/xgoat/pkg/logger"
	"github.com/gkobilansky/xgoat/pkg/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the xgoat HTTP server.

The server provides:
  - Assignment and conversion endpoints for your apps
  - Token-protected experiment admin API
  - Prometheus metrics and a health check

Example:
  xgoat serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("addr", "a", "", "listen address (overrides addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	m := newMetrics(cfg)
	e := newEngine(cfg, s, engine.WithMetrics(m))
	srv := server.New(e, cfg.Addr,
		server.WithMetrics(m),
		server.WithLogger(logger.Named("server")),
		server.WithTokenFile(cfg.TokenFile),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "xgoat running on %s (%s store)\n", serverURL(cfg.Addr), cfg.Store)
	fmt.Fprintf(out, "Admin token: %s\n", srv.Token())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	return srv.Start(ctx)
}

func newMetrics(cfg *config.Config) *metrics.Manager {
	return metrics.NewManager(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.LatencyBuckets),
	)
}

// serverURL turns a listen address into a URL for humans.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
