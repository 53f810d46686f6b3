package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/config"
	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
	"github.com/gkobilansky/xgoat/pkg/logger"
)

// loadConfig layers the config file, environment and global flags, and sets
// up logging to match.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd.Context(), configPath)
	if err != nil {
		return nil, err
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := logger.Init(cmd.ErrOrStderr(), cfg.LogFormat); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	s, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store,
		DBPath:      cfg.DBPath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

func newEngine(cfg *config.Config, s store.Store, opts ...engine.Option) *engine.Engine {
	registry := experiment.NewRegistry(s, experiment.WithRegistryLogger(logger.Named("registry")))
	opts = append([]engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithAlpha(cfg.Alpha),
		engine.WithExperimentScopedBuckets(cfg.ExperimentScopedBuckets),
	}, opts...)
	return engine.New(registry, s, s, opts...)
}

// withEngine opens the configured store, executes fn, and handles cleanup.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine, s store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, newEngine(cfg, s), s)
}

// notFound rewrites a missing experiment into a friendlier message.
func notFound(id string, err error) error {
	if errors.Is(err, experiment.ErrNotFound) {
		return fmt.Errorf("experiment '%s' not found", id)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
