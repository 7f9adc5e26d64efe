// Package postgres opens the Postgres-backed credential store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/hongminglow/svcmon/internal/storage/sqlstore"
)

// NewUserStore connects to databaseURL through a pgx pool, bridges the pool
// to database/sql and applies migrations.
func NewUserStore(ctx context.Context, databaseURL string) (*sqlstore.Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := sqlstore.New(stdlib.OpenDBFromPool(pool), sqlstore.Postgres, sqlstore.WithCloser(pool.Close))
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}
