package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Delivery is one entry of the delayed-delivery schedule.
type Delivery struct {
	SessionKey string
	DueAt      time.Time
	FolderID   string
}

// ScheduleOrBump sets the delivery time for sessionKey, keeping at most one
// entry per session. An existing entry only ever moves later: the stored due
// time is the maximum of the old and new values, so a fresh upload pushes the
// consolidated link out rather than pulling it in.
func (s *Store) ScheduleOrBump(ctx context.Context, sessionKey string, dueAt time.Time, folderID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_schedule (session_key, due_at, folder_id) VALUES (?, ?, ?)
ON CONFLICT(session_key) DO UPDATE SET
	due_at    = MAX(due_at, excluded.due_at),
	folder_id = excluded.folder_id`,
		sessionKey, dueAt.UnixMilli(), folderID)
	if err != nil {
		return fmt.Errorf("schedule delivery: %w", err)
	}
	return nil
}

// ClaimDue atomically removes and returns the earliest schedule entry due at
// or before now. It returns nil when nothing is due. A claimed entry is gone
// from the schedule, so concurrent sweepers never deliver the same session
// twice.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) (*Delivery, error) {
	var d Delivery
	var dueAt int64
	err := s.db.QueryRowContext(ctx, `
DELETE FROM delivery_schedule WHERE session_key = (
	SELECT session_key FROM delivery_schedule
	WHERE due_at <= ? ORDER BY due_at LIMIT 1
) RETURNING session_key, due_at, folder_id`,
		now.UnixMilli()).Scan(&d.SessionKey, &dueAt, &d.FolderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim due delivery: %w", err)
	}
	d.DueAt = time.UnixMilli(dueAt)
	return &d, nil
}

// ListDue returns the entries due at or before now without claiming them.
// Diagnostics only; delivery always goes through ClaimDue.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_key, due_at, folder_id FROM delivery_schedule
WHERE due_at <= ? ORDER BY due_at`,
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var dueAt int64
		if err := rows.Scan(&d.SessionKey, &dueAt, &d.FolderID); err != nil {
			return nil, fmt.Errorf("list due deliveries: %w", err)
		}
		d.DueAt = time.UnixMilli(dueAt)
		out = append(out, d)
	}
	return out, rows.Err()
}
