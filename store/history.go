package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/provider"
)

// LoadHistory returns the saved dialogue for sessionKey, or nil when none
// exists. Expired rows are pruned on read and reported as absent.
func (s *Store) LoadHistory(ctx context.Context, sessionKey string) ([]provider.Message, error) {
	var raw string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT messages_json, expires_at FROM conversations WHERE session_key = ?`,
		sessionKey).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if expiresAt <= time.Now().UnixMilli() {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM conversations WHERE session_key = ?`, sessionKey); err != nil {
			return nil, fmt.Errorf("prune expired history: %w", err)
		}
		return nil, nil
	}

	var msgs []provider.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

// SaveHistory replaces the dialogue for sessionKey and resets its lifetime.
func (s *Store) SaveHistory(ctx context.Context, sessionKey string, msgs []provider.Message, ttl time.Duration) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	expiresAt := time.Now().Add(ttl).UnixMilli()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversations (session_key, messages_json, expires_at) VALUES (?, ?, ?)
ON CONFLICT(session_key) DO UPDATE SET
	messages_json = excluded.messages_json,
	expires_at    = excluded.expires_at`,
		sessionKey, string(raw), expiresAt)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
