package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	generationKey = "flexwatch:data_generation"
	entryTTL      = 10 * time.Minute
)

var ErrMiss = errors.New("cache_miss")

// Cache is an optional redis-backed store for aggregation responses.
// Keys embed a data generation counter; ingestion and policy reloads
// bump the counter, which orphans every older entry. A nil *Cache is
// a valid no-op cache.
type Cache struct {
	client *redis.Client
	log    *zap.Logger
}

// New returns nil when addr is empty; callers treat nil as disabled.
func New(addr, password string, db int, log *zap.Logger) *Cache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, log: log.Named("analytics.cache")}
}

// Generation returns the current data generation counter.
func (c *Cache) Generation(ctx context.Context) int64 {
	if c == nil {
		return 0
	}
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("generation read failed", zap.Error(err))
	}
	return gen
}

// Bump advances the data generation, invalidating all cached entries.
func (c *Cache) Bump(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.log.Warn("generation bump failed", zap.Error(err))
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, ErrMiss
	}
	payload, err := c.client.Get(ctx, c.versionedKey(ctx, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Cache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, c.versionedKey(ctx, key), payload, entryTTL).Err(); err != nil {
		c.log.Warn("cache write failed", zap.Error(err))
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) versionedKey(ctx context.Context, key string) string {
	return fmt.Sprintf("flexwatch:agg:%d:%s", c.Generation(ctx), key)
}
