// ABOUTME: Matrix channel built on mautrix sync
// ABOUTME: Each Matrix sender is one identity; replies go back to their room

package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// MatrixName is the channel name for Matrix identities.
const MatrixName = "matrix"

// MatrixConfig holds connection settings for the Matrix channel.
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	// AllowedRooms restricts processing to these room IDs. Empty allows all.
	AllowedRooms []string `yaml:"allowed_rooms"`
}

// Matrix bridges a Matrix account to the engine. Inbound text events become
// engine messages keyed by the sender's Matrix user ID; replies are sent to
// the room the sender last wrote from.
type Matrix struct {
	client     *mautrix.Client
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	config     MatrixConfig
	logger     *slog.Logger

	// last room each sender wrote from, for outbound routing
	rooms sync.Map
}

// NewMatrix creates the Matrix channel.
func NewMatrix(cfg MatrixConfig, eng *engine.Engine, d *dispatch.Dispatcher, logger *slog.Logger) (*Matrix, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client:     client,
		engine:     eng,
		dispatcher: d,
		config:     cfg,
		logger:     logger.With("component", "matrix"),
	}, nil
}

// Name implements Channel.
func (m *Matrix) Name() string { return MatrixName }

// Run syncs with the homeserver until ctx is cancelled.
func (m *Matrix) Run(ctx context.Context) error {
	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, m.handleEvent)

	m.logger.Info("connecting to matrix homeserver",
		"homeserver", m.config.Homeserver, "user_id", m.config.UserID)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- m.client.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		m.logger.Info("matrix channel shutting down")
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (m *Matrix) handleEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(m.config.UserID) {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if !m.roomAllowed(evt.RoomID.String()) {
		m.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return
	}

	text := strings.TrimSpace(content.Body)
	if text == "" {
		return
	}

	sender := evt.Sender.String()
	m.rooms.Store(sender, evt.RoomID)

	identity := store.Identity{Channel: MatrixName, ExternalUserID: sender}
	reply, err := m.engine.Handle(ctx, engine.Inbound{
		Channel:        MatrixName,
		ExternalUserID: sender,
		Text:           text,
		ReceivedAt:     time.Unix(0, evt.Timestamp*int64(time.Millisecond)).UTC(),
		MessageID:      evt.ID.String(),
	})
	if err != nil {
		m.logger.Error("message handling failed", "sender", sender, "error", err)
		m.sendText(ctx, evt.RoomID, "Sorry, something went wrong. Please try again.")
		return
	}
	if reply.Duplicate {
		return
	}

	if err := m.dispatcher.Send(ctx, identity, reply.ConversationID, reply.Messages); err != nil {
		m.logger.Error("reply delivery failed", "sender", sender, "error", err)
	}
}

// Deliver implements dispatch.Adapter, sending to the sender's last room.
func (m *Matrix) Deliver(ctx context.Context, to store.Identity, msg dispatch.Outbound) error {
	v, ok := m.rooms.Load(to.ExternalUserID)
	if !ok {
		return fmt.Errorf("%w: no known room for %s", dispatch.ErrPermanent, to.ExternalUserID)
	}
	roomID := v.(id.RoomID)

	text := msg.Text
	if len(msg.QuickReplies) > 0 {
		text += "\n[" + strings.Join(msg.QuickReplies, " | ") + "]"
	}
	return m.sendText(ctx, roomID, text)
}

func (m *Matrix) sendText(ctx context.Context, roomID id.RoomID, text string) error {
	if _, err := m.client.SendText(ctx, roomID, text); err != nil {
		return fmt.Errorf("sending to %s: %w", roomID, err)
	}
	return nil
}

func (m *Matrix) roomAllowed(roomID string) bool {
	if len(m.config.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range m.config.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}
