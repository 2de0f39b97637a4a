package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResponseCache is a small keyed get/set cache sitting in front of the
// geocode-by-address and parcel-by-coordinate provider calls, optional and
// pluggable so a single worker process can run without it.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisResponseCache backs ResponseCache with a shared Redis instance so
// multiple worker processes reuse provider responses across a fleet,
// exercising the go-redis client the teacher declares but never wires.
type RedisResponseCache struct {
	Client *redis.Client
}

func (c *RedisResponseCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, raw, ttl).Err()
}

// MemoryResponseCache is the in-process fallback used in tests and single
// process deployments where Redis is not configured.
type MemoryResponseCache struct {
	entries map[string][]byte
}

func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{entries: make(map[string][]byte)}
}

func (c *MemoryResponseCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}
