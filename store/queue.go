package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QueueItem is one piece of media waiting to be filed.
type QueueItem struct {
	MediaID    string
	Kind       string
	ReceivedAt time.Time
}

// PushItem appends a media item to the session's queue. It reports false
// without queueing when the same media id was seen within dedupWindow. The
// queue is capped at max items, oldest dropped first, and the whole queue
// expires retention after the most recent push.
func (s *Store) PushItem(ctx context.Context, sessionKey string, item QueueItem, max int, retention, dedupWindow time.Duration) (bool, error) {
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("push item: %w", err)
	}
	defer tx.Rollback()

	if err := expireQueueTx(ctx, tx, sessionKey, now); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM intake_seen WHERE session_key = ? AND expires_at <= ?`,
		sessionKey, now); err != nil {
		return false, fmt.Errorf("prune seen set: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO intake_seen (session_key, media_id, expires_at) VALUES (?, ?, ?)`,
		sessionKey, item.MediaID, now+dedupWindow.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("record seen media: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, tx.Commit()
	}

	var next sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(position) FROM intake_items WHERE session_key = ?`,
		sessionKey).Scan(&next); err != nil {
		return false, fmt.Errorf("next queue position: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO intake_items (session_key, position, media_id, kind, received_at) VALUES (?, ?, ?, ?, ?)`,
		sessionKey, next.Int64+1, item.MediaID, item.Kind, item.ReceivedAt.UnixMilli()); err != nil {
		return false, fmt.Errorf("insert queue item: %w", err)
	}

	// Cap the queue, oldest first.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM intake_items WHERE session_key = ? AND position NOT IN (
	SELECT position FROM intake_items WHERE session_key = ? ORDER BY position DESC LIMIT ?
)`, sessionKey, sessionKey, max); err != nil {
		return false, fmt.Errorf("trim queue: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO intake_meta (session_key, expires_at) VALUES (?, ?)
ON CONFLICT(session_key) DO UPDATE SET expires_at = excluded.expires_at`,
		sessionKey, now+retention.Milliseconds()); err != nil {
		return false, fmt.Errorf("bump queue retention: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("push item: %w", err)
	}
	return true, nil
}

// PopOldestItem removes and returns the oldest queued item for sessionKey,
// or nil when the queue is empty or expired.
func (s *Store) PopOldestItem(ctx context.Context, sessionKey string) (*QueueItem, error) {
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pop item: %w", err)
	}
	defer tx.Rollback()

	if err := expireQueueTx(ctx, tx, sessionKey, now); err != nil {
		return nil, err
	}

	var item QueueItem
	var receivedAt int64
	err = tx.QueryRowContext(ctx, `
DELETE FROM intake_items WHERE session_key = ? AND position = (
	SELECT MIN(position) FROM intake_items WHERE session_key = ?
) RETURNING media_id, kind, received_at`,
		sessionKey, sessionKey).Scan(&item.MediaID, &item.Kind, &receivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("pop item: %w", err)
	}
	item.ReceivedAt = time.UnixMilli(receivedAt)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pop item: %w", err)
	}
	return &item, nil
}

// QueueLen reports the live item count for sessionKey.
func (s *Store) QueueLen(ctx context.Context, sessionKey string) (int, error) {
	now := time.Now().UnixMilli()
	var expired bool
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM intake_meta WHERE session_key = ?`,
		sessionKey).Scan(&expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("queue len: %w", err)
	default:
		expired = expiresAt <= now
	}
	if expired {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM intake_items WHERE session_key = ?`,
		sessionKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

func expireQueueTx(ctx context.Context, tx *sql.Tx, sessionKey string, now int64) error {
	var expiresAt int64
	err := tx.QueryRowContext(ctx,
		`SELECT expires_at FROM intake_meta WHERE session_key = ?`,
		sessionKey).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check queue retention: %w", err)
	}
	if expiresAt > now {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM intake_items WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("expire queue: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM intake_meta WHERE session_key = ?`, sessionKey); err != nil {
		return fmt.Errorf("expire queue: %w", err)
	}
	return nil
}
