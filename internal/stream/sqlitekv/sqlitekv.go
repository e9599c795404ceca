// Package sqlitekv persists the keyed store in a single SQLite table.
package sqlitekv

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Backend implements stream.Backend with SQLite.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a SQLite database at path (":memory:" works for tests).
// It configures WAL mode, sets pragmas, and creates the kv table.
func Open(path string, logger *slog.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The store has a single writer goroutine; a small pool is enough for
	// replay scans running next to it.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	if logger != nil {
		logger.Info("SQLite database opened successfully", "path", path)
	}
	return &Backend{db: db, logger: logger}, nil
}

// Put upserts value under key.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Scan iterates keys with prefix in ascending order.
func (b *Backend) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`,
		prefix, upperBound(prefix),
	)
	if err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// upperBound returns the smallest string greater than every string with the
// given prefix. Keys are escaped paths, so they never contain 0xFF.
func upperBound(prefix string) string {
	if prefix == "" {
		return "\xff"
	}
	return prefix + "\xff"
}
