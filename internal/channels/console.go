// ABOUTME: Interactive console channel for local development
// ABOUTME: Reads lines from stdin, runs the engine, prints colorized replies

package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/bellhop-chat/bellhop/internal/dispatch"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// ConsoleName is the channel name for console sessions.
const ConsoleName = "console"

// Console is an interactive terminal session against the engine. One Console
// is one end user; the user id is fixed at construction.
type Console struct {
	engine *engine.Engine
	in     io.Reader
	out    io.Writer
	userID string
	logger *slog.Logger

	bot    *color.Color
	system *color.Color
}

// NewConsole creates a console session. If userID is empty a random one is
// generated, giving each session a fresh conversation history.
func NewConsole(eng *engine.Engine, in io.Reader, out io.Writer, userID string, logger *slog.Logger) *Console {
	if userID == "" {
		userID = "console-" + uuid.NewString()[:8]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		engine: eng,
		in:     in,
		out:    out,
		userID: userID,
		logger: logger.With("component", "console"),
		bot:    color.New(color.FgCyan, color.Bold),
		system: color.New(color.FgYellow),
	}
}

// Name implements Channel.
func (c *Console) Name() string { return ConsoleName }

// Run reads lines until EOF or cancellation. Each line is one inbound
// message; replies print immediately.
func (c *Console) Run(ctx context.Context) error {
	c.system.Fprintln(c.out, "Type a message and press enter. Ctrl-D to quit.")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := c.engine.Handle(ctx, engine.Inbound{
			Channel:        ConsoleName,
			ExternalUserID: c.userID,
			Text:           text,
			ReceivedAt:     time.Now().UTC(),
		})
		if err != nil {
			c.system.Fprintf(c.out, "error: %v\n", err)
			continue
		}

		for _, m := range reply.Messages {
			c.bot.Fprintln(c.out, m.Text)
			if len(m.QuickReplies) > 0 {
				c.system.Fprintf(c.out, "  [%s]\n", strings.Join(m.QuickReplies, " | "))
			}
		}
		if reply.Artifact != nil {
			c.system.Fprintf(c.out, "-- %s recorded --\n", reply.Artifact.Type)
		}
	}
	return scanner.Err()
}

// Deliver implements dispatch.Adapter by printing to the console.
func (c *Console) Deliver(ctx context.Context, to store.Identity, msg dispatch.Outbound) error {
	if to.Channel != ConsoleName {
		return fmt.Errorf("%w: not a console identity: %s", dispatch.ErrPermanent, to.Channel)
	}
	c.bot.Fprintln(c.out, msg.Text)
	return nil
}
