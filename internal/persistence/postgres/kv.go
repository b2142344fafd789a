// Package postgres provides a persistence.KV on a PostgreSQL table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	getSQL    = `SELECT value FROM cart_kv WHERE key = $1`
	upsertSQL = `INSERT INTO cart_kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	deleteSQL   = `DELETE FROM cart_kv WHERE key = $1`
	listKeysSQL = `SELECT key FROM cart_kv WHERE starts_with(key, $1) ORDER BY key`
)

// DBTX is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// KV implements persistence.KV on the cart_kv table.
type KV struct {
	db DBTX
}

// NewKV creates a Postgres-backed store over db.
func NewKV(db DBTX) *KV {
	return &KV{db: db}
}

// Migrations returns the schema migrations of the cart_kv table.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate applies pending schema migrations.
func (r *KV) Migrate(ctx context.Context, logger *slog.Logger) error {
	if err := database.RunMigrations(ctx, r.db, Migrations(), logger); err != nil {
		return fmt.Errorf("migrate cart_kv: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (r *KV) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Get", getSQL)
	defer func() {
		if persistence.IsNotFound(err) {
			end(nil)
			return
		}
		end(err)
	}()

	err = r.db.QueryRow(ctx, getSQL, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persistence.KeyNotFound(key)
		}
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (r *KV) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Set", upsertSQL)
	defer func() { end(err) }()

	if value == nil {
		value = []byte{}
	}
	if _, err = r.db.Exec(ctx, upsertSQL, key, value); err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (r *KV) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "Remove", deleteSQL)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the sorted keys starting with prefix.
func (r *KV) ListKeys(ctx context.Context, prefix string) (keys []string, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListKeys", listKeysSQL)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listKeysSQL, prefix)
	if err != nil {
		return nil, fmt.Errorf("postgres list keys %s: %w", prefix, err)
	}
	defer rows.Close()

	keys = make([]string, 0)
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Ping checks the pool.
func (r *KV) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
