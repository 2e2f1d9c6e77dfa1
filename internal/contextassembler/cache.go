package contextassembler

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// MemoryCache is the default in-process Cache, used when no Redis
// address is configured. A single project-snapshot entry never needs
// distribution across processes in the normal single-daemon
// deployment; Redis only matters when a second orchestrator process
// (e.g. a blue/green redeploy) shares the snapshot cache.
type MemoryCache struct {
	mu      sync.Mutex
	value   []byte
	expires time.Time
}

// NewMemoryCache builds an in-process Cache.
func NewMemoryCache() *MemoryCache { return &MemoryCache{} }

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || time.Now().After(c.expires) {
		return nil, false
	}
	return c.value, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.expires = time.Now().Add(ttl)
}

// RedisCache is an optional L2 cache backed by go-redis, falling back
// silently to a cache miss on any Redis error so a down Redis never
// blocks a think cycle (the snapshot it guards is cheaply
// recomputable, unlike the cooldown/budget maps which must stay
// single-writer in-memory per spec §5's shared-resource table).
type RedisCache struct {
	client *redis.Client
	onErr  func(error)
}

// NewRedisCache builds a RedisCache against addr (host:port).
func NewRedisCache(addr string, onErr func(error)) *RedisCache {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr}), onErr: onErr}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.onErr(err)
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.onErr(err)
	}
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
