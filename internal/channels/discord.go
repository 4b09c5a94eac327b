// ABOUTME: Discord channel built on discordgo
// ABOUTME: Each Discord author is one identity; replies go to their channel

package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// DiscordName is the channel name for Discord identities.
const DiscordName = "discord"

// DiscordConfig holds connection settings for the Discord channel.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// AllowedChannels restricts processing to these channel IDs. Empty
	// allows all.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// Discord bridges a Discord bot to the engine.
type Discord struct {
	session    *discordgo.Session
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	config     DiscordConfig
	logger     *slog.Logger

	// last Discord channel each author wrote from, for outbound routing
	destinations sync.Map
}

// NewDiscord creates the Discord channel.
func NewDiscord(cfg DiscordConfig, eng *engine.Engine, d *dispatch.Dispatcher, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		session:    session,
		engine:     eng,
		dispatcher: d,
		config:     cfg,
		logger:     logger.With("component", "discord"),
	}, nil
}

// Name implements Channel.
func (dc *Discord) Name() string { return DiscordName }

// Run opens the gateway connection and blocks until ctx is cancelled.
func (dc *Discord) Run(ctx context.Context) error {
	dc.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		dc.handleMessage(ctx, m)
	})
	dc.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	if err := dc.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	dc.logger.Info("discord channel connected")

	<-ctx.Done()
	dc.logger.Info("discord channel shutting down")
	if err := dc.session.Close(); err != nil {
		return fmt.Errorf("closing discord session: %w", err)
	}
	return nil
}

func (dc *Discord) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !dc.channelAllowed(m.ChannelID) {
		return
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	dc.destinations.Store(m.Author.ID, m.ChannelID)

	identity := store.Identity{Channel: DiscordName, ExternalUserID: m.Author.ID}
	reply, err := dc.engine.Handle(ctx, engine.Inbound{
		Channel:        DiscordName,
		ExternalUserID: m.Author.ID,
		Text:           text,
		ReceivedAt:     time.Now().UTC(),
		MessageID:      m.ID,
	})
	if err != nil {
		dc.logger.Error("message handling failed", "author", m.Author.ID, "error", err)
		_, _ = dc.session.ChannelMessageSend(m.ChannelID, "Sorry, something went wrong. Please try again.")
		return
	}
	if reply.Duplicate {
		return
	}

	if err := dc.dispatcher.Send(ctx, identity, reply.ConversationID, reply.Messages); err != nil {
		dc.logger.Error("reply delivery failed", "author", m.Author.ID, "error", err)
	}
}

// Deliver implements dispatch.Adapter, sending to the author's last channel.
func (dc *Discord) Deliver(ctx context.Context, to store.Identity, msg dispatch.Outbound) error {
	v, ok := dc.destinations.Load(to.ExternalUserID)
	if !ok {
		return fmt.Errorf("%w: no known destination for %s", dispatch.ErrPermanent, to.ExternalUserID)
	}
	channelID := v.(string)

	text := msg.Text
	if len(msg.QuickReplies) > 0 {
		text += "\n[" + strings.Join(msg.QuickReplies, " | ") + "]"
	}
	if _, err := dc.session.ChannelMessageSend(channelID, text); err != nil {
		return fmt.Errorf("sending to channel %s: %w", channelID, err)
	}
	return nil
}

func (dc *Discord) channelAllowed(channelID string) bool {
	if len(dc.config.AllowedChannels) == 0 {
		return true
	}
	for _, allowed := range dc.config.AllowedChannels {
		if allowed == channelID {
			return true
		}
	}
	return false
}
