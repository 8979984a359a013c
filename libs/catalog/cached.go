package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of a key/value store the read-through cache needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached fronts a Directory with a short-lived cache. Cache failures degrade to a
// direct lookup; they never fail the call.
type Cached struct {
	next   Directory
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(next Directory, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) Resource(ctx context.Context, id string) (Resource, error) {
	return readThrough(ctx, c, "catalog:resource:"+id, func() (Resource, error) {
		return c.next.Resource(ctx, id)
	})
}

func (c *Cached) Service(ctx context.Context, id string) (Service, error) {
	return readThrough(ctx, c, "catalog:service:"+id, func() (Service, error) {
		return c.next.Service(ctx, id)
	})
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func() (T, error)) (T, error) {
	var out T
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("catalog cache read failed", "key", key, "err", err)
	} else if ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		c.logger.Warn("catalog cache entry corrupt", "key", key)
	}

	out, err = load()
	if err != nil {
		return out, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("catalog cache write failed", "key", key, "err", err)
		}
	}
	return out, nil
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// ReadyCheck pings Redis for /readyz.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
