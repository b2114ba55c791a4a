package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on a Redis backend so that several proxy
// instances can share one decision cache. Expiry is delegated to Redis TTLs.
type RedisCache struct {
	client     *goredis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// NewRedisCache creates a RedisCache. keyPrefix namespaces the entries so a
// shared Redis database can serve more than one deployment.
func NewRedisCache(client *goredis.Client, keyPrefix string, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &RedisCache{
		client:     client,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a value.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores a value for the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err()
}

// Del removes a value.
func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key).Err()
}

// Len is not cheaply countable on Redis.
func (c *RedisCache) Len() int {
	return -1
}
