// ABOUTME: HTTP gateway accepting inbound message events from messaging providers
// ABOUTME: chi router with health, metrics and the synchronous message endpoint

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/flow"
)

// Server handles inbound message events over HTTP.
type Server struct {
	engine   *engine.Engine
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	// in-flight serialization per identity, so two HTTP deliveries for the
	// same user don't burn CAS retries against each other
	inflight sync.Map // key -> *identityLock
}

// identityLock is a refcounted mutex: the last holder to leave removes the
// map entry, so the in-flight map stays bounded by concurrent requests
// rather than growing per identity seen.
type identityLock struct {
	mu   sync.Mutex
	refs atomic.Int32
}

// NewServer creates a Server. gatherer may be nil to disable /metrics.
func NewServer(eng *engine.Engine, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   eng,
		gatherer: gatherer,
		logger:   logger.With("component", "gateway"),
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/v1/messages", s.handleMessage)

	return r
}

// inboundRequest is the wire shape of one message event.
type inboundRequest struct {
	Channel        string   `json:"channel"`
	ExternalUserID string   `json:"external_user_id"`
	Text           string   `json:"text"`
	ReceivedAt     string   `json:"received_at,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
}

// messageResponse carries the engine's reply back to the gateway caller.
type messageResponse struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Vertical       string         `json:"vertical,omitempty"`
	Messages       []flow.Message `json:"messages"`
	Artifact       *flow.Artifact `json:"artifact,omitempty"`
	Duplicate      bool           `json:"duplicate,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Channel == "" || req.ExternalUserID == "" {
		writeError(w, http.StatusBadRequest, "channel and external_user_id are required")
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ReceivedAt); err == nil {
			receivedAt = t
		}
	}

	unlock := s.lockIdentity(req.Channel + "/" + req.ExternalUserID)
	defer unlock()

	reply, err := s.engine.Handle(r.Context(), engine.Inbound{
		Channel:        req.Channel,
		ExternalUserID: req.ExternalUserID,
		Text:           req.Text,
		ReceivedAt:     receivedAt,
		MessageID:      req.MessageID,
		Attachments:    req.Attachments,
	})
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			writeError(w, http.StatusRequestTimeout, "request cancelled")
			return
		}
		s.logger.Error("message handling failed",
			"channel", req.Channel, "error", err)
		writeError(w, http.StatusInternalServerError, "message could not be processed")
		return
	}

	resp := messageResponse{
		ConversationID: reply.ConversationID,
		Vertical:       reply.Vertical,
		Messages:       reply.Messages,
		Artifact:       reply.Artifact,
		Duplicate:      reply.Duplicate,
	}
	if resp.Messages == nil {
		resp.Messages = []flow.Message{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lockIdentity(key string) func() {
	for {
		v, _ := s.inflight.LoadOrStore(key, &identityLock{})
		l := v.(*identityLock)
		l.refs.Add(1)
		l.mu.Lock()
		// The entry may have been removed between LoadOrStore and the ref
		// increment by a departing holder; take a fresh one if so.
		if cur, ok := s.inflight.Load(key); ok && cur == l {
			return func() { s.releaseIdentity(key, l) }
		}
		s.releaseIdentity(key, l)
	}
}

func (s *Server) releaseIdentity(key string, l *identityLock) {
	l.mu.Unlock()
	if l.refs.Add(-1) == 0 {
		// Remove only our own entry; a newcomer may have replaced it already.
		s.inflight.CompareAndDelete(key, l)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
