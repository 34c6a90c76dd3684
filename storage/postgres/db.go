// Package postgres implements the storage interfaces on PostgreSQL via
// pgx, with goose-managed embedded migrations. The draft-policy upsert
// rides the (user_id, endpoint_pattern, chain_id) uniqueness constraint so
// concurrent draft creation can never duplicate rows.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/agentpay/payflow/logger"
	"github.com/agentpay/payflow/storage"
)

//go:embed migrations/*
var embeddedMigrations embed.FS

// Backend is the PostgreSQL storage.Database.
type Backend struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var _ storage.Database = (*Backend)(nil)

// NewBackend connects to the database and runs pending migrations.
func NewBackend(ctx context.Context, dsn string, log logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	backend := &Backend{pool: pool, log: log}
	if err := backend.migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return backend, nil
}

func (b *Backend) migrate() error {
	b.log.Info("running database migrations", nil)

	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(b.pool)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose up: %w", err)
	}

	b.log.Info("database migrations completed", nil)
	return nil
}

// Pool exposes the underlying pool for callers that need raw access.
func (b *Backend) Pool() *pgxpool.Pool {
	return b.pool
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}
