// ABOUTME: Artifact sink contract and deduplicating wrapper
// ABOUTME: Handoff is at-least-once; sinks must tolerate redelivery

package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/flow"
)

// Sink receives terminal artifacts. Implementations must be safe for
// concurrent use.
type Sink interface {
	Accept(ctx context.Context, artifact *flow.Artifact) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, artifact *flow.Artifact) error

// Accept calls f.
func (f Func) Accept(ctx context.Context, artifact *flow.Artifact) error {
	return f(ctx, artifact)
}

// Deduped wraps a sink, suppressing redelivery of the same artifact. The
// dedup key is conversation id plus the terminal timestamp, so a fresh
// conversation from the same identity still produces a distinct artifact.
type Deduped struct {
	inner Sink
	seen  *dedupe.Cache
}

// NewDeduped wraps inner with redelivery suppression.
func NewDeduped(inner Sink, seen *dedupe.Cache) *Deduped {
	return &Deduped{inner: inner, seen: seen}
}

// Accept forwards the artifact unless it was already delivered.
func (d *Deduped) Accept(ctx context.Context, artifact *flow.Artifact) error {
	key := fmt.Sprintf("artifact:%s:%d", artifact.ConversationID, artifact.CreatedAt.UnixNano())
	if d.seen.Seen(key) {
		return nil
	}
	return d.inner.Accept(ctx, artifact)
}

// LogSink writes artifacts to the log. The default sink when no external
// system is configured; also useful in development.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "sink")}
}

// Accept logs the artifact.
func (s *LogSink) Accept(ctx context.Context, artifact *flow.Artifact) error {
	s.logger.Info("artifact emitted",
		"type", string(artifact.Type),
		"conversation_id", artifact.ConversationID,
		"vertical", artifact.Vertical,
		"fields", artifact.Fields,
	)
	return nil
}

// Fanout delivers each artifact to every sink, returning the first error.
type Fanout []Sink

// Accept delivers to all members.
func (f Fanout) Accept(ctx context.Context, artifact *flow.Artifact) error {
	for _, s := range f {
		if err := s.Accept(ctx, artifact); err != nil {
			return err
		}
	}
	return nil
}
