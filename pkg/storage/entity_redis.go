package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"twscraper/pkg/graphql"
)

// redisKV is the subset of the go-redis client the entity cache needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisEntityStore caches entities in Redis, expiring them by key TTL
type RedisEntityStore struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

// NewRedisEntityStore creates a cache over an existing client
func NewRedisEntityStore(client redisKV, prefix string, ttl time.Duration) *RedisEntityStore {
	if ttl <= 0 {
		ttl = DefaultEntityTTL
	}
	return &RedisEntityStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisEntityStore) key(platform string, kind EntityKind, id string) string {
	return fmt.Sprintf("%sentity:%s:%s:%s", s.prefix, platform, kind, id)
}

func (s *RedisEntityStore) Save(ctx context.Context, records []graphql.Record, idField, platform string, kind EntityKind) error {
	for _, rec := range records {
		id, err := recordID(rec, idField)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, s.key(platform, kind, id), payload, s.ttl).Err(); err != nil {
			return fmt.Errorf("cache %s %s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *RedisEntityStore) Get(ctx context.Context, id, platform string, kind EntityKind) (graphql.Record, bool, error) {
	val, err := s.client.Get(ctx, s.key(platform, kind, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	rec, err := decodeRecord([]byte(val))
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
