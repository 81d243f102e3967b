package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/store"
)

type fakeLinks struct {
	links   map[string]string
	missing map[string]bool
}

func (f *fakeLinks) FolderLink(ctx context.Context, folderID string) (string, bool, error) {
	if f.missing[folderID] {
		return "", false, nil
	}
	link, ok := f.links[folderID]
	if !ok {
		return "", false, errors.New("lookup failed")
	}
	return link, true, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sends []string // "to|text"
	fail  bool
}

func (r *recordingSender) SendReliable(ctx context.Context, to, text, fallbackTemplate string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("send failed")
	}
	r.sends = append(r.sends, to+"|"+text)
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string // "sessionKey|folderID"
	fail     bool
}

func (f *fakeArchiver) Archive(ctx context.Context, sessionKey, folderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("archive failed")
	}
	f.archived = append(f.archived, sessionKey+"|"+folderID)
	return nil
}

func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lawbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewScheduler(s, 5*time.Minute)
}

func TestSweepDeliversDueLink(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	if err := sched.ScheduleOrBumpAt(ctx, "972500000001", time.Now().Add(-time.Second), "f1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sender := &recordingSender{}
	archiver := &fakeArchiver{}
	sweeper := NewSweeper(sched, &fakeLinks{links: map[string]string{"f1": "https://drive.example/f1"}}, archiver, sender, "")
	sweeper.Sweep(ctx)

	if len(sender.sends) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.sends))
	}
	if !strings.Contains(sender.sends[0], "https://drive.example/f1") {
		t.Fatalf("link missing from message: %s", sender.sends[0])
	}
	if !strings.HasPrefix(sender.sends[0], "972500000001|") {
		t.Fatalf("wrong recipient: %s", sender.sends[0])
	}
	if len(archiver.archived) != 1 || archiver.archived[0] != "972500000001|f1" {
		t.Fatalf("bundle not archived before delivery: %v", archiver.archived)
	}

	// The entry was claimed, a second sweep is a no-op.
	sweeper.Sweep(ctx)
	if len(sender.sends) != 1 {
		t.Fatalf("entry delivered twice")
	}
}

func TestSweepSkipsFutureEntries(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	if err := sched.ScheduleOrBump(ctx, "972500000001", "f1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sender := &recordingSender{}
	sweeper := NewSweeper(sched, &fakeLinks{links: map[string]string{"f1": "x"}}, &fakeArchiver{}, sender, "")
	sweeper.Sweep(ctx)

	if len(sender.sends) != 0 {
		t.Fatalf("future entry delivered: %v", sender.sends)
	}
}

func TestSweepSkipsMissingFolder(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	if err := sched.ScheduleOrBumpAt(ctx, "k", time.Now().Add(-time.Second), "gone"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sender := &recordingSender{}
	archiver := &fakeArchiver{}
	sweeper := NewSweeper(sched, &fakeLinks{missing: map[string]bool{"gone": true}}, archiver, sender, "")
	sweeper.Sweep(ctx)

	if len(sender.sends) != 0 {
		t.Fatalf("message sent for missing folder: %v", sender.sends)
	}
	if len(archiver.archived) != 0 {
		t.Fatalf("archived a vanished folder: %v", archiver.archived)
	}
}

func TestSweepDeliversDespiteArchiveFailure(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	if err := sched.ScheduleOrBumpAt(ctx, "k", time.Now().Add(-time.Second), "f1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sender := &recordingSender{}
	sweeper := NewSweeper(sched, &fakeLinks{links: map[string]string{"f1": "x"}}, &fakeArchiver{fail: true}, sender, "")
	sweeper.Sweep(ctx)

	if len(sender.sends) != 1 {
		t.Fatalf("link not delivered after archive failure: %v", sender.sends)
	}
}

func TestSweepClaimsBeforeSending(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	if err := sched.ScheduleOrBumpAt(ctx, "k", time.Now().Add(-time.Second), "f1"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sender := &recordingSender{fail: true}
	sweeper := NewSweeper(sched, &fakeLinks{links: map[string]string{"f1": "x"}}, &fakeArchiver{}, sender, "")
	sweeper.Sweep(ctx)

	// Failed delivery is dropped, not retried at the schedule level.
	due, err := sched.ListDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("entry still scheduled after claim: %v", due)
	}
}

func TestSweepDeliversAllDue(t *testing.T) {
	sched := testScheduler(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := sched.ScheduleOrBumpAt(ctx, key, time.Now().Add(-time.Second), "f1"); err != nil {
			t.Fatalf("schedule %s: %v", key, err)
		}
	}

	sender := &recordingSender{}
	sweeper := NewSweeper(sched, &fakeLinks{links: map[string]string{"f1": "x"}}, &fakeArchiver{}, sender, "")
	sweeper.Sweep(ctx)

	if len(sender.sends) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sender.sends))
	}
}
