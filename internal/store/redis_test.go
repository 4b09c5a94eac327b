// ABOUTME: Tests for the Redis store implementation using miniredis
// ABOUTME: Runs the shared contract and verifies TTL-based idle expiry

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, opts...)
}

func TestRedisStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return newTestRedisStore(t)
	})
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, WithTTL(time.Hour))
	defer s.Close()
	ctx := context.Background()

	identity := Identity{Channel: "whatsapp", ExternalUserID: "+15550004444"}
	now := time.Now().UTC()
	conv := &Conversation{
		ID:           "conv-ttl",
		Identity:     identity,
		Vertical:     "booking",
		CurrentState: "welcome",
		Slots:        map[string]string{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CompareAndSwap(ctx, conv, 0))

	_, err := s.Get(ctx, identity)
	require.NoError(t, err)

	// Redis expires the key once the idle TTL elapses
	mr.FastForward(2 * time.Hour)

	_, err = s.Get(ctx, identity)
	assert.ErrorIs(t, err, ErrNotFound)

	// Preferences are not subject to the TTL
	require.NoError(t, s.SetPreference(ctx, identity, "booking"))
	mr.FastForward(48 * time.Hour)
	v, err := s.GetPreference(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "booking", v)
}
