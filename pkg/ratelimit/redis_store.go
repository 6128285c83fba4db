package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of the go-redis client the store needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore shares the gate timestamp through Redis as unix milliseconds.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client redisClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) ReadNextAllowed(ctx context.Context, key string) (time.Time, error) {
	val, err := s.client.Get(ctx, s.prefix+"gate:"+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *RedisStore) WriteNextAllowed(ctx context.Context, key string, next time.Time) error {
	// The value is stale once passed; a day keeps idle keys from piling up.
	return s.client.Set(ctx, s.prefix+"gate:"+key, strconv.FormatInt(next.UnixMilli(), 10), 24*time.Hour).Err()
}
