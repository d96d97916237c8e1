package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions describe the connection pool of one facility.
type PoolOptions struct {
	URL      string
	MaxConns int32
	MinConns int32
	// Schema is put first on every connection's search_path. Empty leaves
	// the server default.
	Schema string
	// AppName is reported as application_name in pg_stat_activity.
	AppName string
}

// NewPool opens and pings a pool for opts.
func NewPool(ctx context.Context, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func poolConfig(opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}

	params := cfg.ConnConfig.RuntimeParams
	if opts.Schema != "" {
		if !ValidSchema(opts.Schema) {
			return nil, fmt.Errorf("invalid schema name: %s", opts.Schema)
		}
		params["search_path"] = SearchPath(opts.Schema)
	}
	if opts.AppName != "" {
		params["application_name"] = opts.AppName
	}
	return cfg, nil
}
