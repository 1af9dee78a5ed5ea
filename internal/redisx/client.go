package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Cache wraps a redis client behind the small surface the HTTP handlers and
// the reconciler need. Misses come back as empty strings, not errors.
type Cache struct {
	RDB *redis.Client
}

func (c Cache) Get(ctx context.Context, key string) (string, error) {
	s, err := c.RDB.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return s, err
}

func (c Cache) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, val, ttl).Err()
}

func (c Cache) Del(ctx context.Context, keys ...string) error {
	return c.RDB.Del(ctx, keys...).Err()
}
