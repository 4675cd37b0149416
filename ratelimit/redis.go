package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in Redis so limits hold across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store from an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "request_tree:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Incr(ctx context.Context, key string, _ time.Time, ttl time.Duration) (int64, error) {
	k := s.prefix + key
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if ttl < time.Millisecond {
			ttl = time.Millisecond
		}
		if err := s.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
