// ABOUTME: Store interface and data types for bellhop conversation persistence
// ABOUTME: Defines Conversation, Identity and the optimistic-concurrency Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// does not match the expected version. Callers must re-read and recompute.
var ErrVersionConflict = errors.New("version conflict")

// Identity uniquely addresses one end user's conversation:
// the channel name plus the channel-specific user id.
type Identity struct {
	Channel        string
	ExternalUserID string
}

// Key returns the composite key used by store implementations.
func (id Identity) Key() string {
	return id.Channel + ":" + id.ExternalUserID
}

// Conversation is the durable per-identity state advanced by the engine.
// At most one Conversation exists per Identity.
type Conversation struct {
	ID            string // assigned at creation, stable for the conversation's lifetime
	Identity      Identity
	Vertical      string            // empty until the router resolves one
	CurrentState  string            // state tag declared by the vertical's flow definition
	Slots         map[string]string // captured fields, merged on each transition
	InvalidInputs int               // consecutive failed validations, reset on success
	Version       int64             // monotonic counter for optimistic concurrency
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Slots = make(map[string]string, len(c.Slots))
	for k, v := range c.Slots {
		cp.Slots[k] = v
	}
	return &cp
}

// Store defines conversation persistence with optimistic concurrency.
//
// CompareAndSwap with expectedVersion 0 creates the row and fails with
// ErrVersionConflict if one already exists. For any other expectedVersion the
// stored version must match exactly. Callers set conv.Version to
// expectedVersion+1 before the call; the stored row takes conv's values.
type Store interface {
	// Get returns the conversation for the identity, or ErrNotFound.
	Get(ctx context.Context, id Identity) (*Conversation, error)

	// CompareAndSwap persists conv if the stored version equals expectedVersion.
	// Returns ErrVersionConflict on mismatch (including create races).
	CompareAndSwap(ctx context.Context, conv *Conversation, expectedVersion int64) error

	// Delete removes the conversation. Deleting a missing row is not an error.
	Delete(ctx context.Context, id Identity) error

	// DeleteIdle removes conversations not updated since cutoff and returns
	// how many were removed. Used by the background expiry sweep.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)

	// GetPreference returns the identity's last-used vertical, or ErrNotFound.
	GetPreference(ctx context.Context, id Identity) (string, error)

	// SetPreference records the identity's last-used vertical.
	SetPreference(ctx context.Context, id Identity, vertical string) error

	// Close releases any resources held by the store.
	Close() error
}
