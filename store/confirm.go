package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Confirmation tracks contact-detail collection for a session.
type Confirmation struct {
	State    string
	Phone    string
	FullName string
}

// LoadConfirmation returns the confirmation record for sessionKey, or nil
// when none exists or the record has expired.
func (s *Store) LoadConfirmation(ctx context.Context, sessionKey string) (*Confirmation, error) {
	var c Confirmation
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT state, phone, full_name, expires_at FROM confirmations WHERE session_key = ?`,
		sessionKey).Scan(&c.State, &c.Phone, &c.FullName, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load confirmation: %w", err)
	}
	if expiresAt <= time.Now().UnixMilli() {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM confirmations WHERE session_key = ?`, sessionKey); err != nil {
			return nil, fmt.Errorf("prune expired confirmation: %w", err)
		}
		return nil, nil
	}
	return &c, nil
}

// SaveConfirmation writes the confirmation record with the given lifetime.
func (s *Store) SaveConfirmation(ctx context.Context, sessionKey string, c Confirmation, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO confirmations (session_key, state, phone, full_name, expires_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_key) DO UPDATE SET
	state      = excluded.state,
	phone      = excluded.phone,
	full_name  = excluded.full_name,
	expires_at = excluded.expires_at`,
		sessionKey, c.State, c.Phone, c.FullName, time.Now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("save confirmation: %w", err)
	}
	return nil
}

// DeleteConfirmation removes the record for sessionKey, if any.
func (s *Store) DeleteConfirmation(ctx context.Context, sessionKey string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM confirmations WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("delete confirmation: %w", err)
	}
	return nil
}
