// Package sqlite implements the device-local overflow store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - overflow table
const currentSchemaVersion = 1

// OverflowStore persists attachment payloads that could not be embedded in
// their report document. Data lives in a single SQLite file on this device.
type OverflowStore struct {
	db *sql.DB
}

// Open creates or opens the overflow database at path.
//
// The database is configured with WAL journaling, NORMAL synchronous mode
// and a 5-second busy timeout.
func Open(path string) (*OverflowStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	return &OverflowStore{db: db}, nil
}

// Close closes the database.
func (s *OverflowStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores data under key, replacing any previous payload.
func (s *OverflowStore) Put(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overflow (key, data, size) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, key, data, len(data))
	if err != nil {
		return fmt.Errorf("sqlite.OverflowStore.Put: %w", err)
	}
	return nil
}

// Get returns the payload for key. A missing key is reported with ok=false,
// not an error: payloads written on another device are simply absent here.
func (s *OverflowStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM overflow WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite.OverflowStore.Get: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// Delete removes the given keys in one transaction. Missing keys are ignored.
func (s *OverflowStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.OverflowStore.Delete: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM overflow WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("sqlite.OverflowStore.Delete: prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("sqlite.OverflowStore.Delete: %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.OverflowStore.Delete: commit: %w", err)
	}
	return nil
}

// Keys lists stored keys beginning with prefix, in key order.
func (s *OverflowStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM overflow WHERE key LIKE ? ESCAPE '\' ORDER BY key COLLATE BINARY`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite.OverflowStore.Keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite.OverflowStore.Keys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.OverflowStore.Keys: rows: %w", err)
	}
	return keys, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		// LIKE prefix matching on keys must be case-sensitive.
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
