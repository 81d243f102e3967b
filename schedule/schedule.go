// Package schedule owns delayed delivery of the consolidated document link.
// Each conversation has at most one pending delivery; new uploads push its
// due time out, and a background sweeper claims due entries and sends the
// link once per session.
package schedule

import (
	"context"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/store"
)

// Scheduler manipulates the delivery schedule with a fixed default delay.
type Scheduler struct {
	store *store.Store
	delay time.Duration
}

// NewScheduler builds a scheduler that books deliveries delay after the
// triggering upload.
func NewScheduler(s *store.Store, delay time.Duration) *Scheduler {
	return &Scheduler{store: s, delay: delay}
}

// ScheduleOrBump books or postpones the delivery for sessionKey to the
// default delay from now. The stored due time never moves earlier.
func (s *Scheduler) ScheduleOrBump(ctx context.Context, sessionKey, folderID string) error {
	return s.store.ScheduleOrBump(ctx, sessionKey, time.Now().Add(s.delay), folderID)
}

// ScheduleOrBumpAt is ScheduleOrBump with an explicit due time.
func (s *Scheduler) ScheduleOrBumpAt(ctx context.Context, sessionKey string, dueAt time.Time, folderID string) error {
	return s.store.ScheduleOrBump(ctx, sessionKey, dueAt, folderID)
}

// ClaimDue removes and returns the earliest due entry, nil when none.
func (s *Scheduler) ClaimDue(ctx context.Context, now time.Time) (*store.Delivery, error) {
	return s.store.ClaimDue(ctx, now)
}

// ListDue returns due entries without claiming them.
func (s *Scheduler) ListDue(ctx context.Context, now time.Time) ([]store.Delivery, error) {
	return s.store.ListDue(ctx, now)
}
