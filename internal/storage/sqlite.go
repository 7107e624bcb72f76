// Package storage persists normalized race-session data in a single SQLite
// database file and exposes the derived analytical views over it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// TimeFormat is the canonical datetime encoding for all DATETIME columns:
// UTC, millisecond precision, space-separated so SQLite datetime() arithmetic
// and lexicographic ordering agree.
const TimeFormat = "2006-01-02 15:04:05.000"

// FormatTime encodes a timestamp for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// FormatTimePtr encodes a nullable timestamp; nil stays NULL.
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

// Config holds database settings for one ingestion or query run.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// DefaultConfig returns settings suitable for local single-writer use.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
	}
}

// DB wraps the SQLite connection for timing data storage.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at cfg.Path and ensures the schema
// exists. Open failures propagate to the caller immediately.
func Open(cfg Config) (*DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One ingestion run owns the file; multiple pooled connections would
	// only fight over the write lock.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &SchemaError{Stmt: head(schema), Err: err}
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// EnsureSchema re-applies the table and index definitions. Every statement
// is IF NOT EXISTS, so calling it on an existing database is a no-op.
func (d *DB) EnsureSchema() error {
	if _, err := d.db.Exec(schema); err != nil {
		return &SchemaError{Stmt: head(schema), Err: err}
	}
	return nil
}

// Begin starts the single write transaction for an ingestion run.
func (d *DB) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// Handle exposes the underlying connection for read-only consumers.
func (d *DB) Handle() *sql.DB {
	return d.db
}

func head(s string) string {
	const n = 40
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
