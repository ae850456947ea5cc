package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounterStore keeps rate limit counters in Redis so replicas share them
type RedisCounterStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCounterStore creates a Redis-backed counter store
func NewRedisCounterStore(redisClient *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounterStore{redis: redisClient, prefix: prefix}
}

// Increment implements CounterStore. The key expires when its window ends.
func (s *RedisCounterStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	redisKey := s.key(key, windowStart)

	pipe := s.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, windowStart.Add(window))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val(), nil
}

func (s *RedisCounterStore) key(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, windowStart.Unix())
}
