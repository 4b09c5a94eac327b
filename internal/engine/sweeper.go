// ABOUTME: Background sweep expiring idle conversations
// ABOUTME: Expiry is a silent reset: slots are discarded, next contact starts fresh

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/bellhop-chat/bellhop/internal/store"
)

// Sweeper periodically deletes conversations with no inbound activity past
// the idle timeout. Not a user-visible cancellation: no message is sent.
type Sweeper struct {
	store       store.Store
	idleTimeout time.Duration
	interval    time.Duration
	logger      *slog.Logger
	nowFn       func() time.Time
}

// NewSweeper creates a sweeper. interval defaults to 10 minutes when zero.
func NewSweeper(st store.Store, idleTimeout, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:       st,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger.With("component", "sweeper"),
		nowFn:       time.Now,
	}
}

// Run sweeps until the context is cancelled. Call in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs one expiry pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.nowFn().Add(-s.idleTimeout)
	removed, err := s.store.DeleteIdle(ctx, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expired idle conversations", "count", removed)
	}
}
