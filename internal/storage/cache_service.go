package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService stores JSON values in Redis under a namespaced key
type CacheService struct {
	redis  *RedisCache
	ttl    time.Duration
	prefix string
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis:  redis,
		ttl:    ttl,
		prefix: "portal:cache",
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyTranches is for the active tranche list
	CacheKeyTranches CacheKeyType = "tranches"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: portal:cache:<type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, c.prefix, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Client().Set(ctx, key, data, ttl).Err()
}

// Get retrieves a value from cache into dest. A miss returns false, nil.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Client().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Client().Del(ctx, keys...).Err()
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
