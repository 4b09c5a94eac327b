// ABOUTME: Tests for the channel adapters
// ABOUTME: Console round trip and outbound routing without live provider connections

package channels

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/router"
	"github.com/bellhop-chat/bellhop/internal/store"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	reg, err := flow.Defaults(10)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	cache := dedupe.New(time.Minute, 256)
	t.Cleanup(cache.Close)

	rt := router.New(reg, st, nil, nil)
	return engine.New(reg, st, rt, nil, cache, metrics.Nop(), engine.Config{}, nil)
}

func TestConsole_BookingSession(t *testing.T) {
	eng := newTestEngine(t)

	input := strings.Join([]string{
		"I'd like to book a table",
		"2",
		"25/12/2099",
		"19:00",
		"4",
	}, "\n")
	var out bytes.Buffer

	console := NewConsole(eng, strings.NewReader(input), &out, "tester", nil)
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "What date")
	assert.Contains(t, text, "booking recorded")
}

func TestConsole_DeliverRejectsForeignChannel(t *testing.T) {
	console := NewConsole(newTestEngine(t), strings.NewReader(""), &bytes.Buffer{}, "tester", nil)

	err := console.Deliver(context.Background(),
		store.Identity{Channel: "discord", ExternalUserID: "u1"},
		dispatch.Outbound{Text: "hi"})
	assert.ErrorIs(t, err, dispatch.ErrPermanent)
}

func TestMatrix_DeliverWithoutKnownRoom(t *testing.T) {
	m, err := NewMatrix(MatrixConfig{
		Homeserver:  "https://matrix.example.org",
		UserID:      "@bellhop:example.org",
		AccessToken: "token",
	}, newTestEngine(t), dispatch.New(nil, nil, nil), nil)
	require.NoError(t, err)

	err = m.Deliver(context.Background(),
		store.Identity{Channel: MatrixName, ExternalUserID: "@alice:example.org"},
		dispatch.Outbound{Text: "hi"})
	assert.True(t, errors.Is(err, dispatch.ErrPermanent))
}

func TestDiscord_DeliverWithoutKnownDestination(t *testing.T) {
	d, err := NewDiscord(DiscordConfig{Token: "token"}, newTestEngine(t), dispatch.New(nil, nil, nil), nil)
	require.NoError(t, err)

	err = d.Deliver(context.Background(),
		store.Identity{Channel: DiscordName, ExternalUserID: "12345"},
		dispatch.Outbound{Text: "hi"})
	assert.ErrorIs(t, err, dispatch.ErrPermanent)
}

func TestSlack_DeliverRejectsEmptyConversation(t *testing.T) {
	s := NewSlack(SlackConfig{BotToken: "xoxb-test"}, nil)

	err := s.Deliver(context.Background(),
		store.Identity{Channel: SlackName},
		dispatch.Outbound{Text: "hi"})
	assert.ErrorIs(t, err, dispatch.ErrPermanent)
}

func TestRoomAllowed(t *testing.T) {
	m, err := NewMatrix(MatrixConfig{
		Homeserver:   "https://matrix.example.org",
		UserID:       "@bellhop:example.org",
		AccessToken:  "token",
		AllowedRooms: []string{"!abc:example.org"},
	}, newTestEngine(t), dispatch.New(nil, nil, nil), nil)
	require.NoError(t, err)

	assert.True(t, m.roomAllowed("!abc:example.org"))
	assert.False(t, m.roomAllowed("!other:example.org"))
}
