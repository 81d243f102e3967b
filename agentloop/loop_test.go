package agentloop

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/neo050/Office-Automation-Law-bot/intake"
	"github.com/neo050/Office-Automation-Law-bot/provider"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []*provider.Response
	requests  []*provider.Request
	err       error
}

func (p *scriptedProvider) Chat(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &provider.Response{Content: "בסדר."}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type fakeActions struct {
	mu         sync.Mutex
	lookups    []string // "id|name|phone"
	creates    []string // "id|name|phone"
	saved      []string // "folder|media|type"
	bundles    []string // "folder|raw"
	saveResult Result
	knownName  string
	findErr    error
}

func (f *fakeActions) LookupClient(ctx context.Context, id, fullName, phone string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id+"|"+fullName+"|"+phone)
	exists := false
	return Result{OK: true, RowNumber: 2, Exists: &exists}
}

func (f *fakeActions) CreateFolder(ctx context.Context, id, fullName, phone string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, id+"|"+fullName+"|"+phone)
	return Result{OK: true, FolderID: "folder-1", RowNumber: 2}
}

func (f *fakeActions) FindByPhone(ctx context.Context, phone string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return "", false, f.findErr
	}
	return f.knownName, f.knownName != "", nil
}

func (f *fakeActions) SaveMedia(ctx context.Context, folderID, mediaID, mediaType string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, folderID+"|"+mediaID+"|"+mediaType)
	if f.saveResult.OK || f.saveResult.Error != "" {
		return f.saveResult
	}
	return Result{OK: true, URL: "https://drive.example/file"}
}

func (f *fakeActions) SaveChatBundle(ctx context.Context, folderID, raw, summary string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles = append(f.bundles, folderID+"|"+raw)
	return Result{OK: true}
}

type fakeLoopSender struct {
	mu    sync.Mutex
	sends []string
	errs  []error
}

func (f *fakeLoopSender) SendReliable(ctx context.Context, to, text, fallbackTemplate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sends = append(f.sends, text)
	return nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	bumps []string // "session|folder"
}

func (f *fakeScheduler) ScheduleOrBump(ctx context.Context, sessionKey, folderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumps = append(f.bumps, sessionKey+"|"+folderID)
	return nil
}

type fakeIdle struct {
	mu    sync.Mutex
	bumps []string
}

func (f *fakeIdle) Bump(sessionKey, folderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumps = append(f.bumps, sessionKey+"|"+folderID)
}

type loopFixture struct {
	loop      *Loop
	provider  *scriptedProvider
	actions   *fakeActions
	sender    *fakeLoopSender
	scheduler *fakeScheduler
	idle      *fakeIdle
	store     *store.Store
	queue     *intake.Queue
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lawbot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f := &loopFixture{
		provider:  &scriptedProvider{},
		actions:   &fakeActions{},
		sender:    &fakeLoopSender{},
		scheduler: &fakeScheduler{},
		idle:      &fakeIdle{},
		store:     s,
		queue:     intake.NewQueue(s, 50, 10*time.Minute, time.Hour),
	}
	f.loop = New(f.provider, s, f.queue, f.scheduler, f.idle, f.actions, f.sender, Config{
		HistoryTTL: 72 * time.Hour,
		ConfirmTTL: 15 * time.Minute,
	})
	return f
}

// markConfirmed skips the contact-confirmation gate for a session.
func (f *loopFixture) markConfirmed(t *testing.T, key string) {
	t.Helper()
	err := f.store.SaveConfirmation(context.Background(), key, store.Confirmation{
		State:    confirmReady,
		Phone:    "+" + key,
		FullName: "דנה לוי",
	}, time.Hour)
	if err != nil {
		t.Fatalf("seed confirmation: %v", err)
	}
}

func toolCall(id, name, args string) provider.ToolCall {
	return provider.ToolCall{
		ID:   id,
		Type: "function",
		Function: provider.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestHandlePlainReply(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")
	f.provider.responses = []*provider.Response{{Content: "שלום, כיצד אפשר לעזור?"}}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	if len(f.sender.sends) != 1 || f.sender.sends[0] != "שלום, כיצד אפשר לעזור?" {
		t.Fatalf("unexpected sends %v", f.sender.sends)
	}

	h, err := f.store.LoadHistory(context.Background(), "972500000001")
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(h) != 3 {
		t.Fatalf("expected system+user+assistant, got %d messages", len(h))
	}
	if h[0].Role != "system" || !strings.Contains(h[0].Content, "דנה לוי") {
		t.Fatalf("confirmed details missing from system prompt: %q", h[0].Content)
	}
}

func TestHandleToolCallRound(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")
	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "lookupClient", `{"id":"123456789","fullName":"דנה לוי","phone":"+972500000001"}`),
		}},
		{Content: "נמצאת במערכת."},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "תעודת זהות 123456789",
	})

	if len(f.actions.lookups) != 1 {
		t.Fatalf("expected one lookup, got %v", f.actions.lookups)
	}
	if len(f.provider.requests) != 2 {
		t.Fatalf("expected two model rounds, got %d", len(f.provider.requests))
	}
	if len(f.sender.sends) != 1 || f.sender.sends[0] != "נמצאת במערכת." {
		t.Fatalf("unexpected sends %v", f.sender.sends)
	}

	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	// system, user, assistant+tools, tool, assistant
	if len(h) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(h))
	}
	if h[3].Role != "tool" || h[3].ToolCallID != "c1" {
		t.Fatalf("tool reply missing: %+v", h[3])
	}
}

func TestHandleSaveMediaFallsBackToQueue(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "saveMedia", `{"folderId":"folder-1"}`),
		}},
		{Content: "המסמך נשמר."},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "document", MediaID: "987654",
	})

	if len(f.actions.saved) != 1 || f.actions.saved[0] != "folder-1|987654|document" {
		t.Fatalf("unexpected saves %v", f.actions.saved)
	}
	if len(f.scheduler.bumps) != 1 || f.scheduler.bumps[0] != "972500000001|folder-1" {
		t.Fatalf("link not scheduled: %v", f.scheduler.bumps)
	}
	if len(f.idle.bumps) != 1 {
		t.Fatalf("idle timer not bumped: %v", f.idle.bumps)
	}

	// The per-file URL must not reach the model.
	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	for _, m := range h {
		if m.Role == "tool" && strings.Contains(m.Content, "drive.example") {
			t.Fatalf("file URL leaked into tool reply: %s", m.Content)
		}
	}
}

func TestHandleSaveMediaEmptyQueue(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "saveMedia", `{"folderId":"folder-1"}`),
		}},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שמור",
	})

	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	var toolReply string
	for _, m := range h {
		if m.Role == "tool" {
			toolReply = m.Content
		}
	}
	if !strings.Contains(toolReply, "no_media_in_queue") {
		t.Fatalf("expected no_media_in_queue, got %q", toolReply)
	}
	// A failed tool batch sends the fallback notice.
	if len(f.sender.sends) != 1 || f.sender.sends[0] != fallbackMsg {
		t.Fatalf("unexpected sends %v", f.sender.sends)
	}
}

func TestHandleModelFailureDoesNotPersist(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")
	f.provider.err = errors.New("upstream 500")

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	if len(f.sender.sends) != 1 || f.sender.sends[0] != fallbackMsg {
		t.Fatalf("expected fallback notice, got %v", f.sender.sends)
	}
	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	if h != nil {
		t.Fatalf("failed turn persisted: %v", h)
	}
}

func TestHandleTokenExpiredNotice(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "sendWhatsApp", `{"text":"הודעה"}`),
		}},
	}
	f.sender.errs = []error{whatsapp.ErrTokenExpired}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	if len(f.sender.sends) != 1 || f.sender.sends[0] != tokenExpiredMsg {
		t.Fatalf("expected token-expired notice, got %v", f.sender.sends)
	}
	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	if len(h) == 0 || h[len(h)-1].Content != tokenExpiredMsg {
		t.Fatalf("token notice not recorded in history")
	}
}

func TestHandleDedupsRepeatedSendInBatch(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "sendWhatsApp", `{"text":"אנא שלחו מסמכים"}`),
			toolCall("c2", "sendWhatsApp", `{"text":"אנא שלחו מסמכים"}`),
		}},
		{Content: ""},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	if len(f.sender.sends) != 1 {
		t.Fatalf("duplicate batch send not collapsed: %v", f.sender.sends)
	}
}

func TestHandleUnknownTool(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "deleteEverything", `{}`),
		}},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	h, _ := f.store.LoadHistory(context.Background(), "972500000001")
	var toolReply string
	for _, m := range h {
		if m.Role == "tool" {
			toolReply = m.Content
		}
	}
	if !strings.Contains(toolReply, "unknown_tool") {
		t.Fatalf("expected unknown_tool, got %q", toolReply)
	}
}

func TestHandleLegacySaveChatLogAlias(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "saveChatLog", `{"folderId":"folder-1","raw":"[user] שלום"}`),
		}},
		{Content: "נשמר."},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "סיום",
	})

	if len(f.actions.bundles) != 1 || f.actions.bundles[0] != "folder-1|[user] שלום" {
		t.Fatalf("legacy alias not routed to bundle update: %v", f.actions.bundles)
	}
}

func TestHandleCreateFolderBumpsIdle(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")

	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", "createFolder", `{"id":"123456789","fullName":"דנה לוי","phone":"+972500000001"}`),
		}},
		{Content: "נוצרה תיקייה."},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "צור תיקייה",
	})

	if len(f.actions.creates) != 1 {
		t.Fatalf("expected one folder creation, got %v", f.actions.creates)
	}
	if len(f.idle.bumps) != 1 || f.idle.bumps[0] != "972500000001|folder-1" {
		t.Fatalf("idle timer not armed for new folder: %v", f.idle.bumps)
	}
}

func TestHandleToolCallsUseConfirmedContact(t *testing.T) {
	f := newLoopFixture(t)
	f.markConfirmed(t, "972500000001")
	f.provider.responses = []*provider.Response{
		{ToolCalls: []provider.ToolCall{
			toolCall("c1", toolLookupClient, `{"id":"1042","fullName":"Wrong Name","phone":"+15550001111"}`),
			toolCall("c2", toolCreateFolder, `{"id":"1042"}`),
		}},
		{Content: "נמצא."},
	}

	f.loop.Handle(context.Background(), &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "תעודת זהות 1042",
	})

	if len(f.actions.lookups) != 1 || len(f.actions.creates) != 1 {
		t.Fatalf("expected one lookup and one create, got %v / %v", f.actions.lookups, f.actions.creates)
	}
	if f.actions.lookups[0] != "1042|דנה לוי|+972500000001" {
		t.Fatalf("model-supplied contact reached the registry: %s", f.actions.lookups[0])
	}
	if f.actions.creates[0] != "1042|דנה לוי|+972500000001" {
		t.Fatalf("folder created with unverified contact: %s", f.actions.creates[0])
	}
}

func TestHandleRefreshesConfirmationExpiry(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()
	err := f.store.SaveConfirmation(ctx, "972500000001", store.Confirmation{
		State:    confirmReady,
		Phone:    "+972500000001",
		FullName: "דנה לוי",
	}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("seed confirmation: %v", err)
	}

	f.provider.responses = []*provider.Response{{Content: "בסדר."}}
	f.loop.Handle(ctx, &whatsapp.InboundMessage{
		From: "972500000001", Type: "text", Text: "שלום",
	})

	// The turn must have pushed the expiry past the original deadline.
	time.Sleep(80 * time.Millisecond)
	conf, err := f.store.LoadConfirmation(ctx, "972500000001")
	if err != nil {
		t.Fatalf("load confirmation: %v", err)
	}
	if conf == nil || conf.State != confirmReady {
		t.Fatalf("confirmation expired despite active conversation: %+v", conf)
	}
}
