// Package cache keeps rendered order views in Redis so repeated reads of a
// busy order skip the four queries that assemble it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tablebill/api/internal/config"
)

const (
	orderKeyPrefix  = "tablebill:order:"
	defaultCacheTTL = 5 * time.Minute
)

// RedisOrderCache stores JSON-encoded order views keyed by order id.
type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOrderCache(cfg config.RedisConfig) *RedisOrderCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &RedisOrderCache{client: client, ttl: ttl}
}

func orderKey(id string) string {
	return orderKeyPrefix + id
}

// Get decodes the cached view into dst. A miss returns false with no error.
func (c *RedisOrderCache) Get(ctx context.Context, id string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A stale shape after a deploy; drop it and treat as a miss.
		log.Printf("WARNING: cache: discarding undecodable entry %s: %v", id, err)
		_ = c.client.Del(ctx, orderKey(id)).Err()
		return false, nil
	}
	return true, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, orderKey(id), data, c.ttl).Err()
}

func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, orderKey(id)).Err()
}

// Ping checks connectivity; used at startup.
func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOrderCache) Close() error {
	return c.client.Close()
}

// NopCache is used when no Redis address is configured. Every read misses.
type NopCache struct{}

func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NopCache) Set(context.Context, string, any) error         { return nil }
func (NopCache) Delete(context.Context, string) error           { return nil }
