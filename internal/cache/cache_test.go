package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tablebill/api/internal/config"
)

func TestOrderKey(t *testing.T) {
	if got := orderKey("abc"); got != "tablebill:order:abc" {
		t.Errorf("orderKey: got %q", got)
	}
}

func TestNewRedisOrderCache_DefaultTTL(t *testing.T) {
	c := NewRedisOrderCache(config.RedisConfig{Addr: "localhost:6379"})
	defer c.Close()
	if c.ttl != defaultCacheTTL {
		t.Errorf("ttl: got %v, want %v", c.ttl, defaultCacheTTL)
	}

	c2 := NewRedisOrderCache(config.RedisConfig{Addr: "localhost:6379", TTL: time.Minute})
	defer c2.Close()
	if c2.ttl != time.Minute {
		t.Errorf("ttl: got %v, want 1m", c2.ttl)
	}
}

func TestNopCache_AlwaysMisses(t *testing.T) {
	var c NopCache
	ctx := context.Background()
	if err := c.Set(ctx, "id", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var dst map[string]string
	hit, err := c.Get(ctx, "id", &dst)
	if err != nil || hit {
		t.Errorf("get: hit=%v err=%v, want miss", hit, err)
	}
	if err := c.Delete(ctx, "id"); err != nil {
		t.Errorf("delete: %v", err)
	}
}
