// Package webhook receives Meta webhook deliveries: the GET verification
// handshake and the POST message feed. Deliveries are acknowledged
// immediately; the dialogue runs in the background so platform retries never
// pile up behind a slow model call.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"

	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

const maxBodyBytes = 2 << 20

// Handler consumes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg *whatsapp.InboundMessage)
}

// Enqueuer captures inbound media before the dialogue runs.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *whatsapp.InboundMessage) (bool, error)
}

// Server is the webhook HTTP endpoint.
type Server struct {
	addr        string
	verifyToken string
	handler     Handler
	enqueuer    Enqueuer

	srv *http.Server
}

// NewServer builds the endpoint on addr.
func NewServer(addr, verifyToken string, handler Handler, enqueuer Enqueuer) *Server {
	return &Server{
		addr:        addr,
		verifyToken: verifyToken,
		handler:     handler,
		enqueuer:    enqueuer,
	}
}

// Router returns the HTTP routes. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/webhook", s.verify)
	r.Post("/webhook", s.receive)
	return r
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webhook server failed", "error", err)
		}
	}()
	logger.Info("webhook server listening", "addr", s.addr)
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	// The platform retries on anything but 200, so the ack is unconditional.
	defer w.WriteHeader(http.StatusOK)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Error("webhook body read failed", "error", err)
		return
	}

	msg := ParseInbound(body)
	if msg == nil {
		return
	}
	logger.Debug("webhook message received", "from", msg.From, "type", msg.Type)

	// Queue media synchronously so the upload survives even if the process
	// dies before the dialogue turn runs.
	if _, err := s.enqueuer.Enqueue(r.Context(), msg); err != nil {
		logger.Error("webhook media enqueue failed", "from", msg.From, "error", err)
	}

	go s.handler.Handle(context.Background(), msg)
}

// ParseInbound plucks the first message out of a webhook delivery, nil when
// the payload carries none (status updates, read receipts).
func ParseInbound(body []byte) *whatsapp.InboundMessage {
	m := gjson.GetBytes(body, "entry.0.changes.0.value.messages.0")
	if !m.Exists() {
		return nil
	}
	msgType := m.Get("type").String()
	msg := &whatsapp.InboundMessage{
		From:      m.Get("from").String(),
		Type:      msgType,
		Text:      m.Get("text.body").String(),
		Timestamp: m.Get("timestamp").Int(),
	}
	if id := m.Get(msgType + ".id"); id.Exists() {
		msg.MediaID = id.String()
	}
	if msg.From == "" || msg.Type == "" {
		return nil
	}
	return msg
}
