// ABOUTME: Contract tests shared by all Store implementations
// ABOUTME: Exercises CAS create/update semantics, deletes, idle expiry and preferences

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract runs the Store contract against a fresh implementation.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	identity := Identity{Channel: "whatsapp", ExternalUserID: "+15550001111"}

	newConv := func() *Conversation {
		now := time.Now().UTC().Truncate(time.Second)
		return &Conversation{
			ID:           "conv-001",
			Identity:     identity,
			Vertical:     "booking",
			CurrentState: "welcome",
			Slots:        map[string]string{},
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.Get(context.Background(), identity)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		conv := newConv()
		conv.Slots["date"] = "25/12/2026"
		require.NoError(t, s.CompareAndSwap(ctx, conv, 0))

		got, err := s.Get(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, "conv-001", got.ID)
		assert.Equal(t, "booking", got.Vertical)
		assert.Equal(t, "welcome", got.CurrentState)
		assert.Equal(t, "25/12/2026", got.Slots["date"])
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("CreateConflictOnExisting", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.CompareAndSwap(ctx, newConv(), 0))
		err := s.CompareAndSwap(ctx, newConv(), 0)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("UpdateWithMatchingVersion", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		conv := newConv()
		require.NoError(t, s.CompareAndSwap(ctx, conv, 0))

		conv.CurrentState = "awaiting_date"
		conv.Slots["party_size"] = "4"
		conv.Version = 2
		require.NoError(t, s.CompareAndSwap(ctx, conv, 1))

		got, err := s.Get(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, "awaiting_date", got.CurrentState)
		assert.Equal(t, "4", got.Slots["party_size"])
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("UpdateWithStaleVersion", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		conv := newConv()
		require.NoError(t, s.CompareAndSwap(ctx, conv, 0))

		conv.Version = 2
		require.NoError(t, s.CompareAndSwap(ctx, conv, 1))

		// A writer that read version 1 must now lose
		stale := newConv()
		stale.CurrentState = "confirmed"
		stale.Version = 2
		err := s.CompareAndSwap(ctx, stale, 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("UpdateMissingRow", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		conv := newConv()
		conv.Version = 2
		err := s.CompareAndSwap(context.Background(), conv, 1)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.CompareAndSwap(ctx, newConv(), 0))
		require.NoError(t, s.Delete(ctx, identity))

		_, err := s.Get(ctx, identity)
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is not an error
		assert.NoError(t, s.Delete(ctx, identity))
	})

	t.Run("DeleteIdle", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		old := newConv()
		old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
		require.NoError(t, s.CompareAndSwap(ctx, old, 0))

		fresh := newConv()
		fresh.ID = "conv-002"
		fresh.Identity = Identity{Channel: "whatsapp", ExternalUserID: "+15550002222"}
		require.NoError(t, s.CompareAndSwap(ctx, fresh, 0))

		removed, err := s.DeleteIdle(ctx, time.Now().UTC().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.Get(ctx, identity)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, fresh.Identity)
		assert.NoError(t, err)
	})

	t.Run("Preferences", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		_, err := s.GetPreference(ctx, identity)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SetPreference(ctx, identity, "booking"))
		v, err := s.GetPreference(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, "booking", v)

		// Overwrite
		require.NoError(t, s.SetPreference(ctx, identity, "support"))
		v, err = s.GetPreference(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, "support", v)
	})
}
