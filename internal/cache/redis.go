package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSetStore keeps each named set in a Redis SET under a shared key prefix,
// so several scanner instances can share dedup state.
type RedisSetStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisSetConfig holds configuration for the Redis set store.
type RedisSetConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisSetStore connects to Redis and verifies the connection.
func NewRedisSetStore(cfg RedisSetConfig) (*RedisSetStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     5,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.Addr, err)
	}

	s := NewRedisSetStoreFromClient(client, cfg.KeyPrefix)
	log.Printf("[RedisSetStore] Connected - addr:%s, DB:%d, prefix:%s", cfg.Addr, cfg.DB, s.keyPrefix)
	return s, nil
}

// NewRedisSetStoreFromClient wraps an existing client.
func NewRedisSetStoreFromClient(client *redis.Client, keyPrefix string) *RedisSetStore {
	if keyPrefix == "" {
		keyPrefix = "restackguard:state"
	}
	return &RedisSetStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisSetStore) key(set string) string {
	return s.keyPrefix + ":" + set
}

// IsMember reports whether member is in the named set.
func (s *RedisSetStore) IsMember(ctx context.Context, set, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key(set), member).Result()
	if err != nil {
		return false, fmt.Errorf("redis SISMEMBER %s: %w", s.key(set), err)
	}
	return ok, nil
}

// Add inserts member into the named set.
func (s *RedisSetStore) Add(ctx context.Context, set, member string) error {
	if err := s.client.SAdd(ctx, s.key(set), member).Err(); err != nil {
		return fmt.Errorf("redis SADD %s: %w", s.key(set), err)
	}
	return nil
}

// Count returns the size of the named set.
func (s *RedisSetStore) Count(ctx context.Context, set string) (int64, error) {
	n, err := s.client.SCard(ctx, s.key(set)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SCARD %s: %w", s.key(set), err)
	}
	return n, nil
}

// Members returns every member of the named set.
func (s *RedisSetStore) Members(ctx context.Context, set string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(set)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %s: %w", s.key(set), err)
	}
	return members, nil
}

// Close closes the Redis client.
func (s *RedisSetStore) Close() error {
	return s.client.Close()
}

var _ SetStore = (*RedisSetStore)(nil)
