package custom_cache

import (
	"context"
	"log"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	bigcache_store "github.com/eko/gocache/store/bigcache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// MemoryCache keeps values in process memory. All values share the lifetime
// passed to NewMemoryCache.
type MemoryCache struct {
	cache *cache.Cache[[]byte]
}

func NewMemoryCache(ctx context.Context, ttl time.Duration) (*MemoryCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	bigcacheClient, err := bigcache.New(ctx, bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, err
	}
	bigcacheStore := bigcache_store.NewBigcache(bigcacheClient)

	return &MemoryCache{
		cache: cache.New[[]byte](bigcacheStore),
	}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value string) error {
	return c.cache.Set(ctx, key, []byte(value))
}

// RedisCache shares values between instances through redis.
type RedisCache struct {
	cache *cache.Cache[string]
	ttl   time.Duration
}

func NewRedisCache(address string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	redisStore := redis_store.NewRedis(redis.NewClient(&redis.Options{
		Addr: address,
	}))

	log.Printf("[INFO] using redis cache at %s", address)
	return &RedisCache{
		cache: cache.New[string](redisStore),
		ttl:   ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.cache.Get(ctx, key)
}

func (c *RedisCache) Set(ctx context.Context, key string, value string) error {
	return c.cache.Set(ctx, key, value, store.WithExpiration(c.ttl))
}
