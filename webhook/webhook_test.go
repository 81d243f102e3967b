package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

type capturingHandler struct {
	mu   sync.Mutex
	msgs []*whatsapp.InboundMessage
	done chan struct{}
}

func newCapturingHandler() *capturingHandler {
	return &capturingHandler{done: make(chan struct{}, 4)}
}

func (h *capturingHandler) Handle(ctx context.Context, msg *whatsapp.InboundMessage) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	h.done <- struct{}{}
}

type capturingEnqueuer struct {
	mu   sync.Mutex
	msgs []*whatsapp.InboundMessage
}

func (e *capturingEnqueuer) Enqueue(ctx context.Context, msg *whatsapp.InboundMessage) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
	return msg.IsMedia(), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *capturingHandler, *capturingEnqueuer) {
	t.Helper()
	h := newCapturingHandler()
	e := &capturingEnqueuer{}
	srv := httptest.NewServer(NewServer(":0", "secret-token", h, e).Router())
	t.Cleanup(srv.Close)
	return srv, h, e
}

func TestVerifyHandshake(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "42" {
		t.Fatalf("challenge not echoed: %q", body)
	}
}

func TestVerifyRejectsBadToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

const textPayload = `{
	"entry": [{"changes": [{"value": {"messages": [{
		"from": "972500000001",
		"type": "text",
		"timestamp": "1724480000",
		"text": {"body": "שלום"}
	}]}}]}]
}`

const imagePayload = `{
	"entry": [{"changes": [{"value": {"messages": [{
		"from": "972500000001",
		"type": "image",
		"timestamp": "1724480000",
		"image": {"id": "987654", "mime_type": "image/jpeg"}
	}]}}]}]
}`

func TestReceiveTextMessage(t *testing.T) {
	srv, h, e := newTestServer(t)

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(textPayload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler not invoked")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.msgs) != 1 || h.msgs[0].Text != "שלום" || h.msgs[0].From != "972500000001" {
		t.Fatalf("unexpected message %+v", h.msgs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.msgs) != 1 {
		t.Fatalf("enqueuer not called")
	}
}

func TestReceiveStatusUpdateIgnored(t *testing.T) {
	srv, h, e := newTestServer(t)

	payload := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x","status":"delivered"}]}}]}]}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	h.mu.Lock()
	e.mu.Lock()
	defer h.mu.Unlock()
	defer e.mu.Unlock()
	if len(h.msgs) != 0 || len(e.msgs) != 0 {
		t.Fatalf("status update processed as message")
	}
}

func TestParseInboundMedia(t *testing.T) {
	msg := ParseInbound([]byte(imagePayload))
	if msg == nil {
		t.Fatalf("media payload not parsed")
	}
	if msg.Type != "image" || msg.MediaID != "987654" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !msg.IsMedia() {
		t.Fatalf("image not classified as media")
	}
	if msg.Timestamp != 1724480000 {
		t.Fatalf("timestamp not parsed: %d", msg.Timestamp)
	}
}

func TestParseInboundGarbage(t *testing.T) {
	for _, payload := range []string{"", "{}", "not json", `{"entry":[]}`} {
		if msg := ParseInbound([]byte(payload)); msg != nil {
			t.Fatalf("garbage %q parsed to %+v", payload, msg)
		}
	}
}
