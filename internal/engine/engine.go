// ABOUTME: Conversation engine executing one flow transition per inbound message
// ABOUTME: CAS persistence with reload-and-recompute, escalation, terminal artifact handoff

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/sink"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// casAttempts bounds reload-and-recompute cycles on version conflicts.
const casAttempts = 5

// errStale signals that step cleared a leftover row (for example a terminal
// conversation that survived a crash) and should be re-run from scratch.
var errStale = errors.New("stale conversation")

// Inbound is one message event from a messaging gateway.
type Inbound struct {
	Channel        string    `json:"channel"`
	ExternalUserID string    `json:"external_user_id"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
	Attachments    []string  `json:"attachments,omitempty"`
	// MessageID is the gateway's delivery id, used to suppress redelivery.
	// Optional; empty disables deduplication for this event.
	MessageID string `json:"message_id,omitempty"`
}

// Identity returns the store identity for the event.
func (in Inbound) Identity() store.Identity {
	return store.Identity{Channel: in.Channel, ExternalUserID: in.ExternalUserID}
}

// Reply is the outcome of processing one inbound message.
type Reply struct {
	ConversationID string
	Vertical       string
	Messages       []flow.Message
	Artifact       *flow.Artifact
	// Duplicate is true when the event was a redelivery and nothing ran.
	Duplicate bool
}

// VerticalResolver resolves the vertical for a message with no active
// conversation. Satisfied by router.Router.
type VerticalResolver interface {
	Classify(ctx context.Context, text string, id store.Identity) (string, error)
}

// Config tunes the engine.
type Config struct {
	// MaxInvalidInputs is the consecutive-failure threshold that escalates
	// a conversation to human handoff. Zero means 3.
	MaxInvalidInputs int
}

// Engine executes transitions.
type Engine struct {
	registry *flow.Registry
	store    store.Store
	resolver VerticalResolver
	sink     sink.Sink
	seen     *dedupe.Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger

	maxInvalid int
	backoff    []time.Duration
	nowFn      func() time.Time
}

// New creates an Engine.
func New(registry *flow.Registry, st store.Store, resolver VerticalResolver, artifacts sink.Sink, seen *dedupe.Cache, m *metrics.Metrics, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if artifacts == nil {
		artifacts = sink.NewLogSink(logger)
	}
	maxInvalid := cfg.MaxInvalidInputs
	if maxInvalid <= 0 {
		maxInvalid = 3
	}
	return &Engine{
		registry:   registry,
		store:      st,
		resolver:   resolver,
		sink:       artifacts,
		seen:       seen,
		metrics:    m,
		logger:     logger.With("component", "engine"),
		maxInvalid: maxInvalid,
		backoff:    []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond},
		nowFn:      time.Now,
	}
}

// Handle processes one inbound message: resolve the conversation, execute one
// transition, persist, hand off any terminal artifact, and return the
// outbound messages. Safe to call concurrently for different identities.
func (e *Engine) Handle(ctx context.Context, in Inbound) (*Reply, error) {
	e.metrics.InboundMessages.WithLabelValues(in.Channel).Inc()

	if in.MessageID != "" && e.seen != nil && e.seen.Seen(in.Channel+":"+in.MessageID) {
		e.logger.Debug("duplicate inbound dropped",
			"channel", in.Channel, "message_id", in.MessageID)
		return &Reply{Duplicate: true}, nil
	}

	start := e.nowFn()
	defer func() {
		e.metrics.TransitionSeconds.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		reply, err := e.step(ctx, in)
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, errStale) {
			// Concurrent writer won; reload and recompute. The transition is
			// deterministic, so rerunning it is safe.
			lastErr = err
			continue
		}
		return reply, err
	}
	return nil, fmt.Errorf("transition kept conflicting after %d attempts: %w", casAttempts, lastErr)
}

// step runs a single load-compute-persist cycle. A returned
// store.ErrVersionConflict means the caller should retry.
func (e *Engine) step(ctx context.Context, in Inbound) (*Reply, error) {
	identity := in.Identity()
	now := e.nowFn()

	conv, created, err := e.loadOrCreate(ctx, in, identity, now)
	if err != nil {
		return nil, err
	}

	def, ok := e.registry.Get(conv.Vertical)
	if !ok {
		// The stored vertical is no longer registered. Drop the row so the
		// next message starts a fresh, routable conversation.
		e.logger.Error("conversation references unregistered vertical",
			"conversation_id", conv.ID, "vertical", conv.Vertical)
		if delErr := e.store.Delete(ctx, identity); delErr != nil {
			return nil, fmt.Errorf("resetting orphaned conversation: %w", delErr)
		}
		return nil, fmt.Errorf("unregistered vertical %q", conv.Vertical)
	}

	if !created && def.IsTerminal(conv.CurrentState) {
		// Leftover from a crash between terminal persist and delete. Clear
		// it so this message starts a fresh flow.
		if err := e.store.Delete(ctx, identity); err != nil {
			return nil, fmt.Errorf("clearing finished conversation: %w", err)
		}
		return nil, errStale
	}

	res, err := def.Step(conv.CurrentState, conv.Slots, in.Text, now)
	if err != nil {
		return nil, fmt.Errorf("computing transition: %w", err)
	}

	if def.Stateless {
		return e.stepStateless(ctx, identity, conv, def, res, created)
	}

	next := conv.Clone()
	next.UpdatedAt = now
	next.Version = conv.Version + 1

	var artifact *flow.Artifact
	terminal := res.Terminal
	outcome := "invalid"

	switch {
	case res.Advanced:
		for k, v := range res.SlotUpdates {
			next.Slots[k] = v
		}
		next.CurrentState = res.Next
		next.InvalidInputs = 0
		outcome = "advanced"
		if res.Artifact != flow.ArtifactNone {
			artifact = e.buildArtifact(res.Artifact, next, now)
		}
		if terminal {
			outcome = "terminal"
		}
	case created:
		// First contact and the message was just the trigger phrase. Greet
		// with the initial prompt instead of a "didn't understand" nudge.
		if prompt, perr := def.Prompt(conv.CurrentState); perr == nil {
			res.Messages = []flow.Message{prompt}
		}
		outcome = "greeting"
	default:
		e.metrics.ValidationFailures.WithLabelValues(conv.Vertical).Inc()
		next.InvalidInputs = conv.InvalidInputs + 1
		if next.InvalidInputs >= e.maxInvalid {
			// Escalate: the only case where repeated validation failure
			// changes conversation state. Emits a Ticket and ends the flow.
			artifact = e.escalationTicket(next, in.Text, now)
			res.Messages = []flow.Message{{
				Text: "I'm having trouble understanding. I've passed this to a teammate who will reply here shortly.",
			}}
			terminal = true
			outcome = "escalated"
		}
	}

	expected := conv.Version
	if created {
		expected = 0
	}
	if err := e.persist(ctx, next, expected); err != nil {
		return nil, err
	}

	e.metrics.Transitions.WithLabelValues(conv.Vertical, outcome).Inc()

	if artifact != nil {
		e.metrics.Artifacts.WithLabelValues(string(artifact.Type)).Inc()
		if err := e.sink.Accept(ctx, artifact); err != nil {
			// At-least-once handoff: the artifact is lost only if we also
			// crash before a redelivery. Surface to operators, not the user.
			e.logger.Error("artifact handoff failed",
				"conversation_id", next.ID, "type", string(artifact.Type), "error", err)
		}
	}

	if terminal {
		// A later message from this identity starts a fresh flow.
		if err := e.store.Delete(ctx, identity); err != nil {
			e.logger.Error("deleting terminal conversation",
				"conversation_id", next.ID, "error", err)
		}
	}

	return &Reply{
		ConversationID: next.ID,
		Vertical:       next.Vertical,
		Messages:       res.Messages,
		Artifact:       artifact,
	}, nil
}

// stepStateless answers a request/response vertical without persisting
// anything: with no row in the store, the next message from this identity is
// classified fresh, so an Info lookup never pins the user away from a real
// flow's trigger.
func (e *Engine) stepStateless(ctx context.Context, identity store.Identity, conv *store.Conversation, def *flow.Definition, res flow.Result, created bool) (*Reply, error) {
	if !created {
		// A row from before this vertical went stateless. Clear it so it
		// stops winning routing.
		if err := e.store.Delete(ctx, identity); err != nil {
			return nil, fmt.Errorf("clearing stateless conversation: %w", err)
		}
	}

	if !res.Advanced {
		// No topic matched; show the menu instead of a validation nudge.
		if prompt, perr := def.Prompt(conv.CurrentState); perr == nil {
			res.Messages = []flow.Message{prompt}
		}
	}

	e.metrics.Transitions.WithLabelValues(conv.Vertical, "stateless").Inc()

	return &Reply{
		ConversationID: conv.ID,
		Vertical:       conv.Vertical,
		Messages:       res.Messages,
	}, nil
}

// loadOrCreate fetches the conversation or creates one in the vertical the
// resolver picks. created reports that the row does not exist yet; the
// caller's persist must then use expectedVersion 0.
func (e *Engine) loadOrCreate(ctx context.Context, in Inbound, identity store.Identity, now time.Time) (*store.Conversation, bool, error) {
	conv, err := e.getWithBackoff(ctx, identity)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("loading conversation: %w", err)
	}

	vertical, err := e.resolver.Classify(ctx, in.Text, identity)
	if err != nil {
		return nil, false, fmt.Errorf("classifying message: %w", err)
	}
	def, ok := e.registry.Get(vertical)
	if !ok {
		return nil, false, fmt.Errorf("resolver chose unregistered vertical %q", vertical)
	}

	if !def.Stateless {
		if err := e.store.SetPreference(ctx, identity, vertical); err != nil {
			// Preference is a routing hint, not state; log and move on.
			e.logger.Warn("saving vertical preference", "error", err)
		}
	}

	e.logger.Info("conversation started",
		"channel", identity.Channel, "vertical", vertical)

	return &store.Conversation{
		ID:           uuid.New().String(),
		Identity:     identity,
		Vertical:     vertical,
		CurrentState: def.Initial,
		Slots:        make(map[string]string),
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true, nil
}

// persist writes through CompareAndSwap, retrying transient persistence
// failures with bounded backoff. Version conflicts pass through untouched so
// Handle can reload and recompute.
func (e *Engine) persist(ctx context.Context, conv *store.Conversation, expectedVersion int64) error {
	var lastErr error
	for attempt := 0; attempt <= len(e.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoff[attempt-1]):
			}
		}

		lastErr = e.store.CompareAndSwap(ctx, conv, expectedVersion)
		if lastErr == nil || errors.Is(lastErr, store.ErrVersionConflict) {
			return lastErr
		}
		e.logger.Warn("persisting conversation failed, will retry",
			"conversation_id", conv.ID, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("persistence retries exhausted: %w", lastErr)
}

// getWithBackoff reads the conversation, retrying transient store errors.
// ErrNotFound is definitive and returned immediately.
func (e *Engine) getWithBackoff(ctx context.Context, identity store.Identity) (*store.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt <= len(e.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.backoff[attempt-1]):
			}
		}

		conv, err := e.store.Get(ctx, identity)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return conv, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("read retries exhausted: %w", lastErr)
}

func (e *Engine) buildArtifact(t flow.ArtifactType, conv *store.Conversation, now time.Time) *flow.Artifact {
	fields := make(map[string]string, len(conv.Slots))
	for k, v := range conv.Slots {
		fields[k] = v
	}
	return &flow.Artifact{
		Type:           t,
		ConversationID: conv.ID,
		Vertical:       conv.Vertical,
		Fields:         fields,
		CreatedAt:      now,
	}
}

func (e *Engine) escalationTicket(conv *store.Conversation, lastInput string, now time.Time) *flow.Artifact {
	a := e.buildArtifact(flow.ArtifactTicket, conv, now)
	a.Fields["reason"] = "invalid_input_exceeded"
	a.Fields["state"] = conv.CurrentState
	a.Fields["last_input"] = lastInput
	return a
}
