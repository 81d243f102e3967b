// Package idle finalizes a conversation's archive after messages stop
// arriving. Timers are process-local and best effort: a restart loses them,
// and the next inbound message simply arms a fresh one.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/logger"
)

// Archiver writes the conversation transcript and summary into the client's
// document folder.
type Archiver interface {
	Archive(ctx context.Context, sessionKey, folderID string) error
}

// armed is one live timer. The generation lets a finished fire tell whether
// the map entry is still its own or a Bump re-armed the key meanwhile.
type armed struct {
	timer *time.Timer
	gen   uint64
}

// Finalizer arms one quiet-period timer per conversation and archives the
// dialogue when the timer fires.
type Finalizer struct {
	archiver Archiver
	quiet    time.Duration

	mu     sync.Mutex
	timers map[string]armed
}

// NewFinalizer builds a finalizer with the given quiet period.
func NewFinalizer(archiver Archiver, quiet time.Duration) *Finalizer {
	return &Finalizer{
		archiver: archiver,
		quiet:    quiet,
		timers:   make(map[string]armed),
	}
}

// Bump (re)arms the timer for sessionKey. A call with an empty folderID is
// ignored: there is nothing to archive into yet.
func (f *Finalizer) Bump(sessionKey, folderID string) {
	if folderID == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.timers[sessionKey]
	if ok {
		cur.timer.Stop()
	}
	gen := cur.gen + 1
	f.timers[sessionKey] = armed{
		timer: time.AfterFunc(f.quiet, func() {
			f.fire(sessionKey, folderID, gen)
		}),
		gen: gen,
	}
}

func (f *Finalizer) fire(sessionKey, folderID string, gen uint64) {
	defer func() {
		f.mu.Lock()
		// A Bump that raced this archive owns the entry now; leave it armed.
		if cur, ok := f.timers[sessionKey]; ok && cur.gen == gen {
			delete(f.timers, sessionKey)
		}
		f.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := f.archiver.Archive(ctx, sessionKey, folderID); err != nil {
		logger.Error("idle archive failed", "session", sessionKey, "folderId", folderID, "error", err)
		return
	}
	logger.Info("conversation archived after quiet period", "session", sessionKey, "folderId", folderID)
}

// Stop cancels every armed timer. Pending archives are abandoned.
func (f *Finalizer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, cur := range f.timers {
		cur.timer.Stop()
		delete(f.timers, key)
	}
}
