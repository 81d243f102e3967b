package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSender struct {
	textErrs     []error
	templateErrs []error
	textCalls    int
	tmplCalls    int
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.textCalls++
	if len(f.textErrs) == 0 {
		return nil
	}
	err := f.textErrs[0]
	f.textErrs = f.textErrs[1:]
	return err
}

func (f *fakeSender) SendTemplate(ctx context.Context, to, name string) error {
	f.tmplCalls++
	if len(f.templateErrs) == 0 {
		return nil
	}
	err := f.templateErrs[0]
	f.templateErrs = f.templateErrs[1:]
	return err
}

func TestSendReliableFirstAttempt(t *testing.T) {
	f := &fakeSender{}
	g := NewGuard(f, []time.Duration{0, time.Millisecond})

	if err := g.SendReliable(context.Background(), "972500000001", "hi", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.textCalls != 1 {
		t.Fatalf("expected 1 attempt, got %d", f.textCalls)
	}
}

func TestSendReliableRetriesTransient(t *testing.T) {
	f := &fakeSender{textErrs: []error{errors.New("503"), errors.New("503")}}
	g := NewGuard(f, []time.Duration{0, time.Millisecond, time.Millisecond})

	if err := g.SendReliable(context.Background(), "972500000001", "hi", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.textCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.textCalls)
	}
}

func TestSendReliableGivesUp(t *testing.T) {
	boom := errors.New("503")
	f := &fakeSender{textErrs: []error{boom, boom}}
	g := NewGuard(f, []time.Duration{0, time.Millisecond})

	err := g.SendReliable(context.Background(), "972500000001", "hi", "")
	if !errors.Is(err, ErrGiveUp) {
		t.Fatalf("expected give-up, got %v", err)
	}
	if f.textCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.textCalls)
	}
}

func TestSendReliableTokenExpiredAbortsImmediately(t *testing.T) {
	f := &fakeSender{textErrs: []error{ErrTokenExpired}}
	g := NewGuard(f, []time.Duration{0, time.Millisecond, time.Millisecond})

	err := g.SendReliable(context.Background(), "972500000001", "hi", "")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected token-expired, got %v", err)
	}
	if f.textCalls != 1 {
		t.Fatalf("expected 1 attempt, got %d", f.textCalls)
	}
}

func TestSendReliableTemplateFallback(t *testing.T) {
	f := &fakeSender{textErrs: []error{ErrReengagement}}
	g := NewGuard(f, []time.Duration{0})

	if err := g.SendReliable(context.Background(), "972500000001", "hi", "intake_resume"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.tmplCalls != 1 {
		t.Fatalf("expected template fallback, got %d calls", f.tmplCalls)
	}
}

func TestSendReliableNoFallbackWithoutTemplate(t *testing.T) {
	f := &fakeSender{textErrs: []error{ErrReengagement}}
	g := NewGuard(f, []time.Duration{0})

	err := g.SendReliable(context.Background(), "972500000001", "hi", "")
	if !errors.Is(err, ErrGiveUp) {
		t.Fatalf("expected give-up, got %v", err)
	}
	if f.tmplCalls != 0 {
		t.Fatalf("unexpected template send")
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":               ".jpg",
		"audio/ogg; codecs=opus":   ".ogg",
		"application/pdf":          ".pdf",
		"application/octet-stream": ".bin",
	}
	for mime, want := range cases {
		if got := ExtensionFor(mime); got != want {
			t.Fatalf("ExtensionFor(%q) = %q, want %q", mime, got, want)
		}
	}
}
