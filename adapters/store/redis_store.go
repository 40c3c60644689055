package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the snapshot lives when no key is configured
const DefaultRedisKey = "bookingclient:session"

// RedisStore keeps the snapshot under a single Redis key
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a new Redis snapshot store
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: client,
		key:    key,
	}
}

var _ ports.SnapshotStore = (*RedisStore)(nil)

// Load reads and decodes the snapshot
func (s *RedisStore) Load(ctx context.Context) (core.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Snapshot{}, false, nil
		}
		return core.Snapshot{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return core.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Save encodes and stores the snapshot without expiry
func (s *RedisStore) Save(ctx context.Context, snapshot core.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot key
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
