// ABOUTME: Tests for the conversation engine
// ABOUTME: Booking round-trip, validator boundaries, routing precedence, escalation, concurrency

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/router"
	"github.com/bellhop-chat/bellhop/internal/store"
)

var engineNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type capturedArtifacts struct {
	mu    sync.Mutex
	items []*flow.Artifact
}

func (c *capturedArtifacts) Accept(ctx context.Context, a *flow.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, a)
	return nil
}

func (c *capturedArtifacts) all() []*flow.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*flow.Artifact(nil), c.items...)
}

type testEnv struct {
	engine    *Engine
	store     *store.MemoryStore
	artifacts *capturedArtifacts
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	reg, err := flow.Defaults(10)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	seen := dedupe.New(time.Hour, 1000)
	t.Cleanup(seen.Close)

	artifacts := &capturedArtifacts{}
	r := router.New(reg, st, nil, nil)

	e := New(reg, st, r, artifacts, seen, metrics.Nop(), Config{MaxInvalidInputs: 3}, nil)
	e.nowFn = func() time.Time { return engineNow }
	e.backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

	return &testEnv{engine: e, store: st, artifacts: artifacts}
}

func inbound(text string) Inbound {
	return Inbound{
		Channel:        "whatsapp",
		ExternalUserID: "+15550001111",
		Text:           text,
		ReceivedAt:     engineNow,
	}
}

func TestHandle_BookingRoundTrip(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// First contact: routed to booking, greeted with the menu
	reply, err := env.engine.Handle(ctx, inbound("I'd like to book a table"))
	require.NoError(t, err)
	assert.Equal(t, "booking", reply.Vertical)
	require.NotEmpty(t, reply.Messages)
	assert.Contains(t, reply.Messages[0].Text, "1.")

	// Scripted conversation through to confirmation
	for _, text := range []string{"2", "25/12/2026", "19:00"} {
		reply, err = env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
		assert.Nil(t, reply.Artifact)
	}

	reply, err = env.engine.Handle(ctx, inbound("4"))
	require.NoError(t, err)
	require.NotNil(t, reply.Artifact)
	assert.Equal(t, flow.ArtifactBooking, reply.Artifact.Type)
	assert.Equal(t, map[string]string{
		"date":       "25/12/2026",
		"time":       "19:00",
		"party_size": "4",
	}, reply.Artifact.Fields)

	// Exactly one artifact emitted
	assert.Len(t, env.artifacts.all(), 1)

	// Terminal conversations are deleted so the next message starts fresh
	_, err = env.store.Get(ctx, inbound("").Identity())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_PartySizeBoundaries(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// "book a table" is a welcome-menu synonym, so it advances straight to
	// the date question even on first contact.
	for _, text := range []string{"book a table", "25/12/2026", "19:00"} {
		_, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
	}

	// 0 and 11 are rejected without advancing
	for _, bad := range []string{"0", "11"} {
		reply, err := env.engine.Handle(ctx, inbound(bad))
		require.NoError(t, err)
		assert.Nil(t, reply.Artifact, "input %q must not confirm", bad)

		conv, err := env.store.Get(ctx, inbound("").Identity())
		require.NoError(t, err)
		assert.Equal(t, flow.BookingStatePartySize, conv.CurrentState)
		assert.NotContains(t, conv.Slots, "party_size")
	}

	// The boundary itself is accepted
	reply, err := env.engine.Handle(ctx, inbound("10"))
	require.NoError(t, err)
	require.NotNil(t, reply.Artifact)
	assert.Equal(t, "10", reply.Artifact.Fields["party_size"])
}

func TestHandle_MidFlowMessageIsNotReclassified(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Handle(ctx, inbound("book a table"))
	require.NoError(t, err)

	// "help" matches the support vertical's triggers, but we're mid-booking
	reply, err := env.engine.Handle(ctx, inbound("help"))
	require.NoError(t, err)
	assert.Equal(t, "booking", reply.Vertical)

	conv, err := env.store.Get(ctx, inbound("").Identity())
	require.NoError(t, err)
	assert.Equal(t, "booking", conv.Vertical)
	assert.Equal(t, flow.BookingStateDate, conv.CurrentState)
}

func TestHandle_InvalidInputEscalatesToTicket(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Handle(ctx, inbound("book a table"))
	require.NoError(t, err)

	// Two bad dates: re-prompted, no escalation yet
	for _, text := range []string{"whenever", "soonish"} {
		reply, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
		assert.Nil(t, reply.Artifact)
	}

	// Third consecutive failure crosses the threshold
	reply, err := env.engine.Handle(ctx, inbound("dunno"))
	require.NoError(t, err)
	require.NotNil(t, reply.Artifact)
	assert.Equal(t, flow.ArtifactTicket, reply.Artifact.Type)
	assert.Equal(t, "invalid_input_exceeded", reply.Artifact.Fields["reason"])
	assert.Equal(t, flow.BookingStateDate, reply.Artifact.Fields["state"])

	// The conversation ends; next contact starts a fresh flow
	_, err = env.store.Get(ctx, inbound("").Identity())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandle_ValidInputResetsInvalidCounter(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Handle(ctx, inbound("book a table"))
	require.NoError(t, err)

	// Two failures, then success, then two more failures: no escalation
	script := []string{"whenever", "soonish", "25/12/2026", "late", "very late"}
	for _, text := range script {
		reply, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
		assert.Nil(t, reply.Artifact, "input %q must not escalate", text)
	}

	conv, err := env.store.Get(ctx, inbound("").Identity())
	require.NoError(t, err)
	assert.Equal(t, 2, conv.InvalidInputs)
}

func TestHandle_DuplicateDeliveryIsDropped(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	for _, text := range []string{"book a table", "25/12/2026", "19:00"} {
		_, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
	}

	final := inbound("4")
	final.MessageID = "gw-msg-999"

	reply, err := env.engine.Handle(ctx, final)
	require.NoError(t, err)
	require.NotNil(t, reply.Artifact)

	// Redelivery of the same gateway message must not duplicate the booking
	dup, err := env.engine.Handle(ctx, final)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Nil(t, dup.Artifact)
	assert.Len(t, env.artifacts.all(), 1)
}

func TestHandle_ConcurrentMessagesSameIdentity(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Handle(ctx, inbound("book a table"))
	require.NoError(t, err)

	// Two messages race at awaiting_date: one valid date, one garbage.
	// Whatever the interleaving, no update is lost: the date lands exactly
	// once, and the loser observes the post-write state.
	var wg sync.WaitGroup
	for _, text := range []string{"25/12/2026", "banana"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := env.engine.Handle(ctx, inbound(text))
			assert.NoError(t, err)
		}(text)
	}
	wg.Wait()

	conv, err := env.store.Get(ctx, inbound("").Identity())
	require.NoError(t, err)
	assert.Equal(t, "25/12/2026", conv.Slots["date"])
	assert.Equal(t, flow.BookingStateTime, conv.CurrentState)
}

func TestHandle_ExpiryResetsFlow(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	for _, text := range []string{"book a table", "25/12/2026"} {
		_, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
	}

	// Sweep with a clock 25 hours ahead: the conversation is idle past the
	// 24h timeout and is silently dropped.
	sw := NewSweeper(env.store, 24*time.Hour, time.Minute, nil)
	sw.nowFn = func() time.Time { return engineNow.Add(25 * time.Hour) }
	sw.SweepOnce(ctx)

	_, err := env.store.Get(ctx, inbound("").Identity())
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Next contact starts at the initial state of a freshly routed vertical
	reply, err := env.engine.Handle(ctx, inbound("what are your hours"))
	require.NoError(t, err)
	assert.Equal(t, flow.InfoVertical, reply.Vertical)
}

func TestHandle_PreferenceRoutesAmbiguousFollowup(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// Complete a salon booking
	script := []string{"I need a haircut", "1", "25/12/2026", "11:00"}
	for _, text := range script {
		_, err := env.engine.Handle(ctx, inbound(text))
		require.NoError(t, err)
	}
	require.Len(t, env.artifacts.all(), 1)

	// A later ambiguous message routes back to the salon, not Info
	reply, err := env.engine.Handle(ctx, inbound("hi again"))
	require.NoError(t, err)
	assert.Equal(t, "salon", reply.Vertical)
}

func TestHandle_StaleTerminalRowRestartsFlow(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	identity := inbound("").Identity()

	// Simulate a crash between terminal persist and delete
	leftover := &store.Conversation{
		ID:           "conv-stale",
		Identity:     identity,
		Vertical:     "booking",
		CurrentState: flow.BookingStateConfirmed,
		Slots:        map[string]string{"date": "01/01/2026"},
		Version:      5,
		CreatedAt:    engineNow.Add(-time.Hour),
		UpdatedAt:    engineNow.Add(-time.Hour),
	}
	require.NoError(t, env.store.CompareAndSwap(ctx, leftover, 0))

	reply, err := env.engine.Handle(ctx, inbound("help me please"))
	require.NoError(t, err)
	assert.Equal(t, "support", reply.Vertical)

	conv, err := env.store.Get(ctx, identity)
	require.NoError(t, err)
	assert.NotEqual(t, "conv-stale", conv.ID)
}

func TestHandle_InfoLookupsLeaveNothingBehind(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	_, err := env.engine.Handle(ctx, inbound("info"))
	require.NoError(t, err)

	reply, err := env.engine.Handle(ctx, inbound("hours"))
	require.NoError(t, err)
	require.NotEmpty(t, reply.Messages)
	assert.Contains(t, reply.Messages[0].Text, "open")
	assert.Nil(t, reply.Artifact)

	// Request/response lookups persist nothing: no row, no artifact
	_, err = env.store.Get(ctx, inbound("").Identity())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, env.artifacts.all())
}

func TestHandle_InfoFallbackDoesNotPinIdentity(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	// Ambiguous first contact falls back to the info menu
	reply, err := env.engine.Handle(ctx, inbound("hello there"))
	require.NoError(t, err)
	assert.Equal(t, flow.InfoVertical, reply.Vertical)

	// An explicit trigger right after must still reach its vertical
	reply, err = env.engine.Handle(ctx, inbound("I'd like to book a table"))
	require.NoError(t, err)
	assert.Equal(t, "booking", reply.Vertical)

	conv, err := env.store.Get(ctx, inbound("").Identity())
	require.NoError(t, err)
	assert.Equal(t, "booking", conv.Vertical)
}

func TestHandle_LegacyInfoRowIsCleared(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	identity := inbound("").Identity()

	// A persisted info row from before lookups went stateless
	require.NoError(t, env.store.CompareAndSwap(ctx, &store.Conversation{
		ID:           "conv-legacy",
		Identity:     identity,
		Vertical:     flow.InfoVertical,
		CurrentState: "active",
		Slots:        map[string]string{},
		Version:      1,
		CreatedAt:    engineNow,
		UpdatedAt:    engineNow,
	}, 0))

	reply, err := env.engine.Handle(ctx, inbound("hours"))
	require.NoError(t, err)
	assert.Equal(t, flow.InfoVertical, reply.Vertical)

	_, err = env.store.Get(ctx, identity)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
