// Package sqlite provides a file-backed persistence.KV on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/pkg/database"
)

const (
	schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`
	getSQL    = `SELECT value FROM kv WHERE key = ?`
	upsertSQL = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteSQL   = `DELETE FROM kv WHERE key = ?`
	listKeysSQL = `SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`
)

// KV persists values in a single SQLite table.
type KV struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*KV, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent Sets.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}
	return &KV{db: db}, nil
}

// Close closes the SQLite handle.
func (s *KV) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *KV) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "Get", getSQL)
	defer func() {
		if persistence.IsNotFound(err) {
			end(nil)
			return
		}
		end(err)
	}()

	err = s.db.QueryRowContext(ctx, getSQL, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.KeyNotFound(key)
		}
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KV) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "Set", upsertSQL)
	defer func() { end(err) }()

	if value == nil {
		value = []byte{}
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, key, value, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *KV) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "Remove", deleteSQL)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the sorted keys starting with prefix.
func (s *KV) ListKeys(ctx context.Context, prefix string) (keys []string, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "ListKeys", listKeysSQL)
	defer func() { end(err) }()

	rows, err := s.db.QueryContext(ctx, listKeysSQL, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite list keys %s: %w", prefix, err)
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

// Ping checks the database handle.
func (s *KV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
