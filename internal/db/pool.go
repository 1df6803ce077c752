package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSize returns a connection cap that leaves every export worker one
// connection for its module queries plus headroom for API reads and
// audit writes.
func PoolSize(workers int) int32 {
	return int32(max(workers, 1) + 4)
}

// NewPool connects to the business database, which holds tenant records,
// the tables being exported and backup job state.
func NewPool(ctx context.Context, databaseURL, appName string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
