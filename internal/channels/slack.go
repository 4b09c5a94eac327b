// ABOUTME: Slack channel built on slack-go
// ABOUTME: Outbound delivery to Slack conversations; the inbound side arrives via the HTTP gateway

package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// SlackName is the channel name for Slack identities.
const SlackName = "slack"

// SlackConfig holds settings for the Slack channel.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// Slack delivers outbound messages to Slack. Inbound Slack events reach the
// engine through the HTTP gateway (Slack's Events API posts there with the
// Slack conversation ID as external_user_id), so this adapter only needs the
// Web API for delivery.
type Slack struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewSlack creates the Slack adapter.
func NewSlack(cfg SlackConfig, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		api:    slack.New(cfg.BotToken),
		logger: logger.With("component", "slack"),
	}
}

// Name implements Channel.
func (s *Slack) Name() string { return SlackName }

// Run verifies credentials and blocks until ctx is cancelled, keeping the
// adapter registered for the server's lifetime.
func (s *Slack) Run(ctx context.Context) error {
	resp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	s.logger.Info("slack channel ready", "bot_user", resp.User, "team", resp.Team)

	<-ctx.Done()
	s.logger.Info("slack channel shutting down")
	return nil
}

// Deliver implements dispatch.Adapter. The identity's external user ID is the
// Slack conversation (channel or DM) to post into.
func (s *Slack) Deliver(ctx context.Context, to store.Identity, msg dispatch.Outbound) error {
	if to.ExternalUserID == "" {
		return fmt.Errorf("%w: empty slack conversation id", dispatch.ErrPermanent)
	}

	text := msg.Text
	if len(msg.QuickReplies) > 0 {
		text += "\n[" + strings.Join(msg.QuickReplies, " | ") + "]"
	}

	_, _, err := s.api.PostMessageContext(ctx, to.ExternalUserID, slack.MsgOptionText(text, false))
	if err != nil {
		if strings.Contains(err.Error(), "channel_not_found") {
			return fmt.Errorf("%w: %v", dispatch.ErrPermanent, err)
		}
		return fmt.Errorf("posting to %s: %w", to.ExternalUserID, err)
	}
	return nil
}
