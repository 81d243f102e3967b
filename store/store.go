// Package store persists intake state in a single SQLite database: dialogue
// histories, the per-user media queue, the delayed-delivery schedule, and
// contact-confirmation progress. Writes that must be atomic with respect to
// concurrent webhook deliveries go through single statements or transactions
// so the scheduler's claim semantics hold without advisory locks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle shared by the queue, schedule, history and
// confirmation accessors.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_sync=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc.org/sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY churn under webhook bursts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	session_key   TEXT PRIMARY KEY,
	messages_json TEXT NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS intake_items (
	session_key TEXT NOT NULL,
	position    INTEGER NOT NULL,
	media_id    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	received_at INTEGER NOT NULL,
	PRIMARY KEY (session_key, position)
);
CREATE TABLE IF NOT EXISTS intake_seen (
	session_key TEXT NOT NULL,
	media_id    TEXT NOT NULL,
	expires_at  INTEGER NOT NULL,
	PRIMARY KEY (session_key, media_id)
);
CREATE TABLE IF NOT EXISTS intake_meta (
	session_key TEXT PRIMARY KEY,
	expires_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS delivery_schedule (
	session_key TEXT PRIMARY KEY,
	due_at      INTEGER NOT NULL,
	folder_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delivery_due ON delivery_schedule (due_at);
CREATE TABLE IF NOT EXISTS confirmations (
	session_key TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	phone       TEXT NOT NULL DEFAULT '',
	full_name   TEXT NOT NULL DEFAULT '',
	expires_at  INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
