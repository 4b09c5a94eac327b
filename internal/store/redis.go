// ABOUTME: Redis implementation of the Store interface using go-redis v9
// ABOUTME: CompareAndSwap is built on WATCH/MULTI so it stays safe across processes

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	convKeyPrefix = "bellhop:conv:"
	prefKeyPrefix = "bellhop:pref:"
)

// RedisStore implements the Store interface on Redis. Conversations are
// stored as JSON blobs; the version check rides on WATCH so concurrent
// writers from different processes still serialize correctly.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0 means no expiration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets a per-write expiration on conversation keys. When set, Redis
// expires idle conversations on its own and DeleteIdle becomes a safety net.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.ttl = ttl
	}
}

// NewRedisStore creates a store from an address.
func NewRedisStore(addr string, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

// NewRedisStoreFromClient creates a store from an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get retrieves the conversation for the identity.
func (r *RedisStore) Get(ctx context.Context, id Identity) (*Conversation, error) {
	data, err := r.client.Get(ctx, convKeyPrefix+id.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	if c.Slots == nil {
		c.Slots = make(map[string]string)
	}
	return &c, nil
}

// CompareAndSwap persists conv if the stored version matches expectedVersion.
// The key is WATCHed for the duration of the check-then-set, so any concurrent
// write aborts the transaction and surfaces as ErrVersionConflict.
func (r *RedisStore) CompareAndSwap(ctx context.Context, conv *Conversation, expectedVersion int64) error {
	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	key := convKeyPrefix + conv.Identity.Key()
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case expectedVersion == 0:
			if err == nil {
				return ErrVersionConflict
			}
			if !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis get: %w", err)
			}
		case errors.Is(err, redis.Nil):
			return ErrVersionConflict
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			var current Conversation
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("decoding conversation: %w", err)
			}
			if current.Version != expectedVersion {
				return ErrVersionConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Key changed between WATCH and EXEC
		return ErrVersionConflict
	}
	return err
}

// Delete removes the conversation for the identity.
func (r *RedisStore) Delete(ctx context.Context, id Identity) error {
	if err := r.client.Del(ctx, convKeyPrefix+id.Key()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteIdle scans conversation keys and removes those not updated since
// cutoff. With WithTTL configured Redis usually expires them first.
func (r *RedisStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, convKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redis get: %w", err)
		}

		var c Conversation
		if err := json.Unmarshal(data, &c); err != nil {
			continue // unreadable row, leave it for operators
		}
		if c.UpdatedAt.Before(cutoff) {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

// GetPreference returns the identity's last-used vertical.
func (r *RedisStore) GetPreference(ctx context.Context, id Identity) (string, error) {
	v, err := r.client.Get(ctx, prefKeyPrefix+id.Key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// SetPreference records the identity's last-used vertical. Preferences are
// not expired: they outlive conversations on purpose.
func (r *RedisStore) SetPreference(ctx context.Context, id Identity, vertical string) error {
	if err := r.client.Set(ctx, prefKeyPrefix+id.Key(), vertical, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
