// Package store provides the record store for external-integration state.
//
// Three record types are persisted: accounts (one per connected external
// identity), lists (saved remote queries owned by an account), and items
// (local shadows of remote entities owned by an account). Lists and items
// are parent-scoped: every query against them is filtered by the owning
// account's identifier, which is what makes cross-account reconciliation
// passes safe to run in parallel without in-process locks.
//
// The database runs in embedded mode using SQLite with WAL for concurrent
// reads. Insert assigns a process-wide-unique identifier (UUID) when the
// caller did not supply one. Per-record writes are atomic; no multi-row
// transactional guarantee is offered or needed by the engine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by Get operations when no record matches.
// A missing record during reconciliation is a data-integrity failure and
// is raised to the immediate caller rather than retried.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the SQLite connection holding account, list and item records.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema before
// first use. The caller MUST call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection. Collaborating layers
// (the shared task hub) reuse the same database file through this handle.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection after a WAL checkpoint.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the record tables if they don't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		server_url TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		credentials TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ext_lists (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL DEFAULT '',
		hub_list_id TEXT NOT NULL DEFAULT '',
		members TEXT NOT NULL DEFAULT '[]',  -- JSON array of item ids
		due_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ext_items (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		remote_key TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		controller TEXT NOT NULL DEFAULT 'none',
		task_id TEXT NOT NULL DEFAULT '',
		done_at TEXT,
		due_at TEXT,
		has_task INTEGER NOT NULL DEFAULT 0,
		from_list INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind);
	CREATE INDEX IF NOT EXISTS idx_lists_account ON ext_lists(account_id);
	CREATE INDEX IF NOT EXISTS idx_items_account ON ext_items(account_id);

	-- Natural-key deduplication: one local item per remote entity per account.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_remote_key
	    ON ext_items(account_id, remote_key);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
