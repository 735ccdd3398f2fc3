package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyPrefix = "dairy:idempotency:"

// RedisIdempotencyStore keeps idempotency keys in Redis so every replica
// sees the same keys
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store on an existing client
func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisIdempotencyStore) lockKey(key string) string {
	return s.keyPrefix + key + ":lock"
}

func (s *RedisIdempotencyStore) responseKey(key string) string {
	return s.keyPrefix + key
}

// Acquire uses SETNX on the lock key
func (s *RedisIdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// Load implements shared.IdempotencyStore
func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) (*shared.StoredResponse, error) {
	raw, err := s.client.Get(ctx, s.responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key %s: %w", key, err)
	}
	var resp shared.StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotency key %s: %w", key, err)
	}
	return &resp, nil
}

// Complete implements shared.IdempotencyStore
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, resp shared.StoredResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotency key %s: %w", key, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.responseKey(key), raw, ttl)
		pipe.Expire(ctx, s.lockKey(key), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete idempotency key %s: %w", key, err)
	}
	return nil
}

// Abandon implements shared.IdempotencyStore
func (s *RedisIdempotencyStore) Abandon(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("abandon idempotency key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
