// ABOUTME: In-memory Store implementation honoring the CompareAndSwap contract
// ABOUTME: Used by tests and the chat subcommand; not durable across restarts

package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It honors the full CompareAndSwap
// contract so engine serialization tests exercise the same code path as the
// durable stores.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by Identity.Key()
	preferences   map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		preferences:   make(map[string]string),
	}
}

// Get retrieves the conversation for the identity.
func (m *MemoryStore) Get(ctx context.Context, id Identity) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// CompareAndSwap persists conv if the stored version matches expectedVersion.
func (m *MemoryStore) CompareAndSwap(ctx context.Context, conv *Conversation, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := conv.Identity.Key()
	existing, ok := m.conversations[key]

	if expectedVersion == 0 {
		if ok {
			return ErrVersionConflict
		}
	} else {
		if !ok || existing.Version != expectedVersion {
			return ErrVersionConflict
		}
	}

	m.conversations[key] = conv.Clone()
	return nil
}

// Delete removes the conversation for the identity.
func (m *MemoryStore) Delete(ctx context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, id.Key())
	return nil
}

// DeleteIdle removes conversations not updated since cutoff.
func (m *MemoryStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, c := range m.conversations {
		if c.UpdatedAt.Before(cutoff) {
			delete(m.conversations, key)
			removed++
		}
	}
	return removed, nil
}

// GetPreference returns the identity's last-used vertical.
func (m *MemoryStore) GetPreference(ctx context.Context, id Identity) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.preferences[id.Key()]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetPreference records the identity's last-used vertical.
func (m *MemoryStore) SetPreference(ctx context.Context, id Identity, vertical string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preferences[id.Key()] = vertical
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
