// Package config defines xgoat's configuration and how it is loaded.
package config

import (
	"fmt"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the backend: sqlite, postgres or memory.
	Store       string `koanf:"store"`
	DBPath      string `koanf:"db_path"`
	DatabaseURL string `koanf:"database_url"`
	// RedisAddr enables cross-instance assignment claims when set.
	RedisAddr string `koanf:"redis_addr"`

	// ExperimentScopedBuckets hashes experiment and user id together.
	ExperimentScopedBuckets bool `koanf:"experiment_scoped_buckets"`

	// Alpha is the p-value threshold for significance.
	Alpha float64 `koanf:"alpha"`

	// TokenFile persists the admin API token between runs.
	TokenFile string `koanf:"token_file"`

	// MetricsNamespace and MetricsSubsystem prefix the engine metric names.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// LatencyBuckets overrides the HTTP latency histogram buckets, in seconds.
	LatencyBuckets []float64 `koanf:"latency_buckets"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":8080",
		Store:     "sqlite",
		DBPath:    "./xgoat.db",
		Alpha:     0.05,
		TokenFile: ".xgoat-token",

		MetricsNamespace: "xgoat",
		MetricsSubsystem: "engine",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}

	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("%w: db_path is required for the sqlite store", ErrInvalidConfig)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}

	if !(c.Alpha > 0 && c.Alpha < 1) {
		return fmt.Errorf("%w: alpha must be between 0 and 1, got %v", ErrInvalidConfig, c.Alpha)
	}

	for i, b := range c.LatencyBuckets {
		if i > 0 && b <= c.LatencyBuckets[i-1] {
			return fmt.Errorf("%w: latency_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	}

	return nil
}
