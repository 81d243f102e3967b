package idle

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingArchiver struct {
	mu    sync.Mutex
	calls []string // "session|folder"
	done  chan struct{}
}

func newRecordingArchiver() *recordingArchiver {
	return &recordingArchiver{done: make(chan struct{}, 8)}
}

func (r *recordingArchiver) Archive(ctx context.Context, sessionKey, folderID string) error {
	r.mu.Lock()
	r.calls = append(r.calls, sessionKey+"|"+folderID)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingArchiver) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitArchive(t *testing.T, r *recordingArchiver) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("archive did not fire")
	}
}

func TestBumpFiresAfterQuietPeriod(t *testing.T) {
	a := newRecordingArchiver()
	f := NewFinalizer(a, 20*time.Millisecond)
	defer f.Stop()

	f.Bump("k", "f1")
	waitArchive(t, a)

	calls := a.snapshot()
	if len(calls) != 1 || calls[0] != "k|f1" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestBumpResetsTimer(t *testing.T) {
	a := newRecordingArchiver()
	f := NewFinalizer(a, 60*time.Millisecond)
	defer f.Stop()

	f.Bump("k", "f1")
	time.Sleep(30 * time.Millisecond)
	f.Bump("k", "f1")
	time.Sleep(40 * time.Millisecond)

	if got := a.snapshot(); len(got) != 0 {
		t.Fatalf("timer fired despite reset: %v", got)
	}
	waitArchive(t, a)
	if got := a.snapshot(); len(got) != 1 {
		t.Fatalf("expected single archive, got %v", got)
	}
}

func TestBumpIgnoresEmptyFolder(t *testing.T) {
	a := newRecordingArchiver()
	f := NewFinalizer(a, 10*time.Millisecond)
	defer f.Stop()

	f.Bump("k", "")
	time.Sleep(40 * time.Millisecond)

	if got := a.snapshot(); len(got) != 0 {
		t.Fatalf("archive fired without a folder: %v", got)
	}
}

func TestStopCancelsTimers(t *testing.T) {
	a := newRecordingArchiver()
	f := NewFinalizer(a, 20*time.Millisecond)

	f.Bump("k", "f1")
	f.Stop()
	time.Sleep(50 * time.Millisecond)

	if got := a.snapshot(); len(got) != 0 {
		t.Fatalf("archive fired after stop: %v", got)
	}
}

type blockingArchiver struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingArchiver) Archive(ctx context.Context, sessionKey, folderID string) error {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.started)
		<-b.release
	}
	return nil
}

func TestBumpDuringArchiveKeepsRearmedTimer(t *testing.T) {
	a := &blockingArchiver{started: make(chan struct{}), release: make(chan struct{})}
	f := NewFinalizer(a, 250*time.Millisecond)
	defer f.Stop()

	f.Bump("k", "f1")
	select {
	case <-a.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("archive did not start")
	}

	// Re-arm while the first archive is still in flight.
	f.Bump("k", "f1")
	f.mu.Lock()
	want := f.timers["k"].gen
	f.mu.Unlock()

	close(a.release)

	// The finished fire must not clear the newer timer's handle.
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		cur, ok := f.timers["k"]
		f.mu.Unlock()
		if !ok || cur.gen != want {
			t.Fatalf("re-armed timer lost its handle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTimersPerSession(t *testing.T) {
	a := newRecordingArchiver()
	f := NewFinalizer(a, 20*time.Millisecond)
	defer f.Stop()

	f.Bump("a", "f1")
	f.Bump("b", "f2")
	waitArchive(t, a)
	waitArchive(t, a)

	got := a.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 archives, got %v", got)
	}
}
