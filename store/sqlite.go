package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SQLiteKV backs the KV collaborator with a local SQLite database.
// One row per key; the capture list lives in a single row, matching the
// platform store's single-entry layout.
type SQLiteKV struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    k          TEXT PRIMARY KEY,
    v          BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);`

// OpenSQLite opens (creating if needed) the database at path with the
// production-safe pragmas and ensures the kv schema. The caller must
// blank-import a driver registering "sqlite" (modernc.org/sqlite).
func OpenSQLite(path string) (*SQLiteKV, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

// NewSQLiteKV wraps an existing handle. EnsureSchema must have run.
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

// EnsureSchema creates the kv table if missing.
func (s *SQLiteKV) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Close closes the underlying handle.
func (s *SQLiteKV) Close() error { return s.db.Close() }

// DB exposes the underlying handle so sibling tables (e.g. the audit
// trail) can share the same database file.
func (s *SQLiteKV) DB() *sql.DB { return s.db }

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.exec(ctx,
		`INSERT INTO kv (k, v, updated_at) VALUES (?,?,?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Remove(ctx context.Context, key string) error {
	if _, err := s.exec(ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("store: remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Wipe(ctx context.Context) error {
	if _, err := s.exec(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("store: wipe: %w", err)
	}
	return nil
}

const maxBusyRetries = 3

// exec runs a statement with automatic retry on SQLITE_BUSY, with
// 100/200/300 ms backoff.
func (s *SQLiteKV) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for i := range maxBusyRetries {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !isBusy(err) || i == maxBusyRetries-1 {
			return nil, err
		}
		lastErr = err
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("store: cancelled during busy retry: %w", ctx.Err())
		}
		t.Stop()
	}
	return nil, lastErr
}

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
