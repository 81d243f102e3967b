// Package agentloop runs the tool-calling dialogue between a WhatsApp
// client and the model: history load and repair, the model round-trips, the
// tool dispatch, and the final persistence of the conversation.
package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neo050/Office-Automation-Law-bot/history"
	"github.com/neo050/Office-Automation-Law-bot/intake"
	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/provider"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

// maxRounds bounds the tool-call loop. A healthy dialogue converges in two
// or three rounds; the cap stops a looping model from burning tokens.
const maxRounds = 8

// Sender delivers outbound messages with the resend guard applied.
type Sender interface {
	SendReliable(ctx context.Context, to, text, fallbackTemplate string) error
}

// Scheduler books the consolidated-link delivery for a session.
type Scheduler interface {
	ScheduleOrBump(ctx context.Context, sessionKey, folderID string) error
}

// IdleBumper rearms the quiet-period archive timer.
type IdleBumper interface {
	Bump(sessionKey, folderID string)
}

// Config carries the loop's tunables.
type Config struct {
	HistoryTTL       time.Duration
	ConfirmTTL       time.Duration
	FallbackTemplate string
}

// Loop is the dialogue orchestrator. One instance serves all sessions;
// per-session mutexes serialize concurrent webhook deliveries for the same
// number.
type Loop struct {
	provider  provider.Provider
	store     *store.Store
	queue     *intake.Queue
	scheduler Scheduler
	idle      IdleBumper
	actions   Actions
	sender    Sender

	historyTTL       time.Duration
	confirmTTL       time.Duration
	fallbackTemplate string

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// New builds the loop.
func New(p provider.Provider, s *store.Store, q *intake.Queue, sched Scheduler, idle IdleBumper, actions Actions, sender Sender, cfg Config) *Loop {
	return &Loop{
		provider:         p,
		store:            s,
		queue:            q,
		scheduler:        sched,
		idle:             idle,
		actions:          actions,
		sender:           sender,
		historyTTL:       cfg.HistoryTTL,
		confirmTTL:       cfg.ConfirmTTL,
		fallbackTemplate: cfg.FallbackTemplate,
		sessions:         make(map[string]*sync.Mutex),
	}
}

func (l *Loop) sessionLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.sessions[key]
	if !ok {
		m = &sync.Mutex{}
		l.sessions[key] = m
	}
	return m
}

func (l *Loop) send(ctx context.Context, to, text string) {
	if err := l.sender.SendReliable(ctx, to, text, l.fallbackTemplate); err != nil {
		logger.Error("outbound send failed", "to", to, "error", err)
	}
}

// Handle processes one inbound message end to end. Safe for concurrent use;
// messages for the same session are serialized.
func (l *Loop) Handle(ctx context.Context, msg *whatsapp.InboundMessage) {
	key := msg.SessionKey()
	turnID := uuid.NewString()

	// Media goes into the queue before anything else so a later failure
	// cannot lose the upload. Duplicate delivery is absorbed by the dedup
	// window.
	if _, err := l.queue.Enqueue(ctx, msg); err != nil {
		logger.Error("media enqueue failed", "session", key, "error", err)
	}

	lock := l.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	logger.Info("dialogue turn start", "session", key, "turn", turnID, "type", msg.Type)

	conf, handled, err := l.confirmGate(ctx, msg)
	if err != nil {
		logger.Error("confirmation gate failed", "session", key, "error", err)
		l.send(ctx, key, fallbackMsg)
		return
	}
	if handled {
		return
	}

	h, err := l.store.LoadHistory(ctx, key)
	if err != nil {
		logger.Error("history load failed", "session", key, "error", err)
		l.send(ctx, key, fallbackMsg)
		return
	}
	h = history.EnsureSystemPrompt(h, systemPromptFor(conf))

	userTurn := msg.Text
	if userTurn == "" {
		userTurn = "[" + msg.Type + "]"
	}
	h = append(h, provider.UserMessage(userTurn))

	for round := 0; round < maxRounds; round++ {
		repaired, report := history.Repair(h)
		if !report.Empty() {
			logger.Warn("history repaired", "session", key,
				"dropped", report.Dropped,
				"fixed", report.Fixed,
				"orphanTools", report.OrphanTools,
				"removedToolCalls", report.RemovedToolCalls)
		}
		h = repaired

		resp, err := l.provider.Chat(ctx, &provider.Request{
			Messages: history.Sanitize(h),
			Tools:    toolDefs(),
		})
		if err != nil {
			// The turn is abandoned without persisting: the next message
			// replays against the last good history.
			logger.Error("model call failed", "session", key, "error", err)
			l.send(ctx, key, fallbackMsg)
			return
		}

		if resp.HasToolCalls() {
			h = append(h, provider.AssistantMessageWithTools(resp.Content, resp.ToolCalls))

			replies, hadError, tokenExpired := l.dispatch(ctx, msg, conf, resp.ToolCalls)
			h = append(h, replies...)

			if hadError {
				txt := fallbackMsg
				if tokenExpired {
					txt = tokenExpiredMsg
				}
				l.send(ctx, key, txt)
				h = append(h, provider.AssistantMessage(txt))
				break
			}
			continue
		}

		if resp.Content != "" {
			l.send(ctx, key, resp.Content)
			h = append(h, provider.AssistantMessage(resp.Content))
		}
		break
	}

	if err := l.store.SaveHistory(ctx, key, h, l.historyTTL); err != nil {
		logger.Error("history save failed", "session", key, "error", err)
	}
	// The confirmed details must stay loadable as long as the history they
	// annotate, so their expiry moves forward together.
	if conf != nil && conf.State == confirmReady {
		if err := l.store.SaveConfirmation(ctx, key, *conf, l.historyTTL); err != nil {
			logger.Error("confirmation refresh failed", "session", key, "error", err)
		}
	}
	logger.Info("dialogue turn end", "session", key, "turn", turnID, "messages", len(h))
}

// dispatch runs one batch of tool calls and returns their tool messages in
// call order.
func (l *Loop) dispatch(ctx context.Context, msg *whatsapp.InboundMessage, conf *store.Confirmation, calls []provider.ToolCall) (replies []provider.Message, hadError, tokenExpired bool) {
	key := msg.SessionKey()
	sentInBatch := map[string]bool{}

	for _, tc := range calls {
		result := l.dispatchOne(ctx, msg, conf, tc, sentInBatch)
		if !result.OK {
			hadError = true
			if result.Error == "token_expired" {
				tokenExpired = true
			}
		}
		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"ok":false,"error":"encode_failed"}`)
		}
		replies = append(replies, provider.ToolResultMessage(tc.ID, tc.Function.Name, string(payload)))
		logger.Debug("tool dispatched", "session", key, "tool", tc.Function.Name, "ok", result.OK)
	}
	return replies, hadError, tokenExpired
}

func (l *Loop) dispatchOne(ctx context.Context, msg *whatsapp.InboundMessage, conf *store.Confirmation, tc provider.ToolCall, sentInBatch map[string]bool) Result {
	key := msg.SessionKey()

	var args struct {
		ID        string `json:"id"`
		FullName  string `json:"fullName"`
		Phone     string `json:"phone"`
		FolderID  string `json:"folderId"`
		MediaID   string `json:"mediaId"`
		MediaType string `json:"mediaType"`
		Text      string `json:"text"`
		Raw       string `json:"raw"`
		Summary   string `json:"summary"`
	}
	raw := tc.Function.Arguments
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn("tool arguments unparsable", "session", key, "tool", tc.Function.Name, "error", err)
		return failure("bad_arguments")
	}

	switch tc.Function.Name {
	case toolLookupClient:
		// The gate-verified contact wins over whatever the model echoed
		// into the arguments.
		fullName, phone := confirmedContact(conf, args.FullName, args.Phone)
		return l.actions.LookupClient(ctx, args.ID, fullName, phone)

	case toolCreateFolder:
		fullName, phone := confirmedContact(conf, args.FullName, args.Phone)
		result := l.actions.CreateFolder(ctx, args.ID, fullName, phone)
		if result.OK {
			l.idle.Bump(key, result.FolderID)
		}
		return result

	case toolSaveMedia:
		mediaID, mediaType := args.MediaID, args.MediaType
		// Model-supplied ids are advisory; anything malformed falls back to
		// the queued upload.
		if mediaType == "" || !mediaIDRe.MatchString(mediaID) {
			next, err := l.queue.Pop(ctx, key)
			if err != nil {
				logger.Error("queue pop failed", "session", key, "error", err)
				return failure("queue_failed")
			}
			if next != nil {
				mediaID, mediaType = next.MediaID, next.Kind
			}
		}
		if mediaID == "" || mediaType == "" {
			return failure("no_media_in_queue")
		}
		result := l.actions.SaveMedia(ctx, args.FolderID, mediaID, mediaType)
		if !result.OK {
			return result
		}
		if err := l.scheduler.ScheduleOrBump(ctx, key, args.FolderID); err != nil {
			logger.Error("link scheduling failed", "session", key, "error", err)
		}
		l.idle.Bump(key, args.FolderID)
		// The per-file URL stays server-side; only the consolidated link is
		// ever sent.
		return Result{OK: true}

	case toolSendWhatsApp:
		if sentInBatch[args.Text] {
			return Result{OK: true}
		}
		sentInBatch[args.Text] = true
		if err := l.sender.SendReliable(ctx, key, args.Text, l.fallbackTemplate); err != nil {
			if errors.Is(err, whatsapp.ErrTokenExpired) {
				return failure("token_expired")
			}
			return failure(err.Error())
		}
		return Result{OK: true}

	case toolSaveChatLog, toolSaveChatBundle:
		// saveChatLog is the legacy name; both archive the bundle.
		return l.actions.SaveChatBundle(ctx, args.FolderID, args.Raw, args.Summary)
	}

	return failure("unknown_tool")
}
