// Package store is the PostgreSQL implementation of the importer's storage.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/warehouse/internal/config"
	"github.com/JonMunkholm/warehouse/internal/importer"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store implements importer.Store over a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ importer.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects a pool using cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database, "max_conns", poolConfig.MaxConns)
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schemaSQL
}

// ExistingPalletNumbers implements importer.Store.
func (s *Store) ExistingPalletNumbers(ctx context.Context, values []string) ([]string, error) {
	return existing(ctx, s.pool, `SELECT DISTINCT pallet_no FROM inventory_units WHERE pallet_no = ANY($1)`, values)
}

// ExistingSKUs implements importer.Store.
func (s *Store) ExistingSKUs(ctx context.Context, values []string) ([]string, error) {
	return existing(ctx, s.pool, `SELECT DISTINCT sku FROM items WHERE sku = ANY($1)`, values)
}

func existing(ctx context.Context, db DBTX, query string, values []string) ([]string, error) {
	if len(values) == 0 {
		return []string{}, nil
	}
	rows, err := db.Query(ctx, query, values)
	if err != nil {
		return nil, translateError(err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translateError(err)
	}
	return found, nil
}

// InRowTx implements importer.Store. The transaction commits only when fn
// returns nil; any error or panic rolls it back.
func (s *Store) InRowTx(ctx context.Context, fn func(tx importer.RowTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translateError(err))
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Debug("rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&rowTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateError(err))
	}
	return nil
}
