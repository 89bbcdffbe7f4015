// Package store is the persistence adapter (C8): transactional CRUD
// over Postgres for environment schemas, environments, jobs, and their
// execution records.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/forge/internal/common"
)

// Store wraps a pgx connection pool and the public CRUD surface for
// every entity in §3 of the domain model.
type Store struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// New opens a connection pool against cfg.DSN.
func New(ctx context.Context, cfg common.StorageConfig, logger arbor.ILogger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parsing dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		poolCfg.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: opening pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	logger.Info().Int32("max_conns", poolCfg.MaxConns).Msg("Store connected")

	return &Store{pool: pool, logger: logger}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for read-only composition queries
// that don't need a transaction.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
