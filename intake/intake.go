// Package intake buffers incoming media per conversation until the dialogue
// loop is ready to file it. Items are deduplicated by media id, capped per
// session, and the whole buffer expires when uploads stop arriving.
package intake

import (
	"context"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

// Item is one buffered upload.
type Item struct {
	MediaID    string
	Kind       string
	ReceivedAt time.Time
}

// Queue is the per-session media buffer backed by the store.
type Queue struct {
	store     *store.Store
	max       int
	retention time.Duration
	seenTTL   time.Duration
}

// NewQueue builds a queue with the given per-session cap, buffer retention
// and dedup window.
func NewQueue(s *store.Store, max int, retention, seenTTL time.Duration) *Queue {
	return &Queue{store: s, max: max, retention: retention, seenTTL: seenTTL}
}

// Enqueue buffers the media carried by msg. Non-media messages and
// duplicates are ignored; both report queued=false without error.
func (q *Queue) Enqueue(ctx context.Context, msg *whatsapp.InboundMessage) (bool, error) {
	if !msg.IsMedia() || msg.MediaID == "" {
		return false, nil
	}
	queued, err := q.store.PushItem(ctx, msg.SessionKey(), store.QueueItem{
		MediaID:    msg.MediaID,
		Kind:       msg.Type,
		ReceivedAt: time.Now(),
	}, q.max, q.retention, q.seenTTL)
	if err != nil {
		return false, err
	}
	if queued {
		logger.Debug("media queued", "session", msg.SessionKey(), "kind", msg.Type, "mediaId", msg.MediaID)
	} else {
		logger.Debug("duplicate media ignored", "session", msg.SessionKey(), "mediaId", msg.MediaID)
	}
	return queued, nil
}

// Pop removes and returns the oldest buffered item for the session, or nil
// when the buffer is empty.
func (q *Queue) Pop(ctx context.Context, sessionKey string) (*Item, error) {
	got, err := q.store.PopOldestItem(ctx, sessionKey)
	if err != nil || got == nil {
		return nil, err
	}
	return &Item{MediaID: got.MediaID, Kind: got.Kind, ReceivedAt: got.ReceivedAt}, nil
}

// Len reports the live buffer size for the session.
func (q *Queue) Len(ctx context.Context, sessionKey string) (int, error) {
	return q.store.QueueLen(ctx, sessionKey)
}
