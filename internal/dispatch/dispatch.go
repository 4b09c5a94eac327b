// ABOUTME: Outbound dispatcher delivering messages through channel adapters
// ABOUTME: Per-conversation sequence numbers, bounded-backoff retries, idempotent intent

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// ErrPermanent marks delivery failures that must not be retried, such as an
// invalid destination. Adapters wrap their errors with it:
//
//	fmt.Errorf("%w: unknown recipient", dispatch.ErrPermanent)
var ErrPermanent = errors.New("permanent delivery failure")

// Outbound is one message addressed to an end user.
type Outbound struct {
	ConversationID string   `json:"conversation_id"`
	SequenceNo     int64    `json:"sequence_no"`
	Text           string   `json:"text"`
	QuickReplies   []string `json:"quick_replies,omitempty"`
}

// Adapter is the abstract channel the dispatcher writes to. Implementations
// live in internal/channels.
type Adapter interface {
	// Name identifies the channel ("console", "matrix", "discord", "slack").
	Name() string
	// Deliver sends one message to the identity. Wrap unrecoverable errors
	// with ErrPermanent; anything else is retried.
	Deliver(ctx context.Context, to store.Identity, msg Outbound) error
}

// Dispatcher fans outbound messages to the adapter registered for each
// identity's channel.
type Dispatcher struct {
	mu       sync.Mutex
	adapters map[string]Adapter
	seqs     map[string]*seqEntry // conversation id -> last sequence assigned
	sent     *dedupe.Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	backoff  []time.Duration

	// seq pruning bounds memory on long-running processes; entries idle
	// past seqTTL belong to conversations the sweeper has already deleted
	seqTTL     time.Duration
	pruneAbove int
	lastPrune  time.Time
	nowFn      func() time.Time
}

type seqEntry struct {
	n       int64
	touched time.Time
}

// New creates a Dispatcher. The dedupe cache suppresses duplicate
// (conversation, sequence) deliveries on engine-level retries.
func New(sent *dedupe.Cache, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Dispatcher{
		adapters:   make(map[string]Adapter),
		seqs:       make(map[string]*seqEntry),
		sent:       sent,
		metrics:    m,
		logger:     logger.With("component", "dispatch"),
		backoff:    []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond},
		seqTTL:     24 * time.Hour,
		pruneAbove: 4096,
		nowFn:      time.Now,
	}
}

// Register adds an adapter. Later registrations replace earlier ones for the
// same channel name.
func (d *Dispatcher) Register(a Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.Name()] = a
}

// Send delivers the flow messages to the identity in order, assigning each a
// fresh sequence number. Messages already sent under the same sequence are
// skipped. The first failed message aborts the remainder so ordering holds.
func (d *Dispatcher) Send(ctx context.Context, to store.Identity, conversationID string, msgs []flow.Message) error {
	adapter, err := d.adapterFor(to.Channel)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		seq := d.nextSeq(conversationID)
		out := Outbound{
			ConversationID: conversationID,
			SequenceNo:     seq,
			Text:           m.Text,
			QuickReplies:   m.QuickReplies,
		}

		key := fmt.Sprintf("out:%s:%d", conversationID, seq)
		if d.sent.Check(key) {
			continue
		}

		if err := d.deliverWithRetry(ctx, adapter, to, out); err != nil {
			return fmt.Errorf("delivering message %d of conversation %s: %w", seq, conversationID, err)
		}
		// Marked only after success so a failed send stays retryable
		d.sent.Mark(key)
	}
	return nil
}

func (d *Dispatcher) adapterFor(channel string) (Adapter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for channel %q", ErrPermanent, channel)
	}
	return a, nil
}

func (d *Dispatcher) nextSeq(conversationID string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFn()
	d.pruneSeqsLocked(now)

	e, ok := d.seqs[conversationID]
	if !ok {
		e = &seqEntry{}
		d.seqs[conversationID] = e
	}
	e.n++
	e.touched = now
	return e.n
}

// pruneSeqsLocked drops sequence counters idle past seqTTL. Runs at most once
// a minute and only once the map is large enough to matter. A pruned
// conversation restarting at 1 is harmless: its row was idle-swept long ago
// and the sent-cache entries have expired with it.
func (d *Dispatcher) pruneSeqsLocked(now time.Time) {
	if len(d.seqs) < d.pruneAbove || now.Sub(d.lastPrune) < time.Minute {
		return
	}
	d.lastPrune = now
	for id, e := range d.seqs {
		if now.Sub(e.touched) > d.seqTTL {
			delete(d.seqs, id)
		}
	}
}

// deliverWithRetry attempts delivery with bounded backoff. Permanent
// failures are reported immediately.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, adapter Adapter, to store.Identity, out Outbound) error {
	var lastErr error
	for attempt := 0; attempt <= len(d.backoff); attempt++ {
		if attempt > 0 {
			d.metrics.DispatchRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff[attempt-1]):
			}
		}

		lastErr = adapter.Deliver(ctx, to, out)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		d.logger.Warn("delivery failed, will retry",
			"channel", adapter.Name(),
			"conversation_id", out.ConversationID,
			"sequence_no", out.SequenceNo,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
