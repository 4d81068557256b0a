package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "bankrec:dedupe:"

// RedisDedupeStore implements DedupeStore on Redis, for deployments where
// several instances share the job queue state.
type RedisDedupeStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDedupeStore connects to Redis and verifies the connection
func NewRedisDedupeStore(cfg config.RedisConfig) (*RedisDedupeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDedupeStore{client: client, keyPrefix: dedupeKeyPrefix}, nil
}

// NewRedisDedupeStoreWithClient wraps an existing client, useful in tests
func NewRedisDedupeStoreWithClient(client *redis.Client, keyPrefix string) *RedisDedupeStore {
	if keyPrefix == "" {
		keyPrefix = dedupeKeyPrefix
	}
	return &RedisDedupeStore{client: client, keyPrefix: keyPrefix}
}

// Reserve marks a key for the TTL using SETNX so the reservation is atomic
// across instances
func (s *RedisDedupeStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve dedupe key: %w", err)
	}
	return ok, nil
}

// Release frees a key before its TTL expires
func (s *RedisDedupeStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release dedupe key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisDedupeStore) Close() error {
	return s.client.Close()
}

var _ DedupeStore = (*RedisDedupeStore)(nil)
