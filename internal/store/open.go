package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Options struct {
	Driver      string
	DBPath      string
	DatabaseURL string
	// RedisAddr enables the Redis assignment guard when set.
	RedisAddr string
}

// Open builds the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	var s Store
	switch opts.Driver {
	case "", DriverSQLite:
		sqlite, err := OpenSQLite(opts.DBPath)
		if err != nil {
			return nil, err
		}
		s = sqlite
	case DriverPostgres:
		pg, err := OpenPostgres(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = pg
	case DriverMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	if opts.RedisAddr == "" {
		return s, nil
	}

	client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		s.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisGuard(s, client, 0), nil
}
