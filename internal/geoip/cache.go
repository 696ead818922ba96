package geoip

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores formatted locations by IP.
type Cache interface {
	Get(ctx context.Context, ip string) (string, bool, error)
	Set(ctx context.Context, ip, location string) error
}

// RedisCache keeps resolved locations in Redis under "geoip:<ip>".
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a cache backed by client whose entries expire after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(ip string) string { return "geoip:" + ip }

// Get returns the cached location for ip. A miss is ("", false, nil).
func (c *RedisCache) Get(ctx context.Context, ip string) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(ip)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores location for ip.
func (c *RedisCache) Set(ctx context.Context, ip, location string) error {
	return c.client.Set(ctx, cacheKey(ip), location, c.ttl).Err()
}
