package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

const module = "rediscache"

// Config holds configuration for a Redis result cache.
type Config struct {
	// Redis client for storage
	Redis redis.UniversalClient

	// Prefix namespaces every key written by this cache
	Prefix string

	// Timeout bounds each Redis operation (defaults to 500ms)
	Timeout time.Duration

	// ScanCount is the SCAN batch size used by Clear (defaults to 100)
	ScanCount int64
}

// Cache implements pipeline.ResultCache on Redis.
type Cache struct {
	config Config
}

var _ pipeline.ResultCache = (*Cache)(nil)

// New creates a Redis result cache.
func New(config Config) (*Cache, error) {
	if config.Redis == nil {
		return nil, gferrors.NewValidationError(module, "redis", nil, "redis client is required")
	}
	if err := validation.ValidateNotEmpty(module, "prefix", config.Prefix); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration(module, "timeout", config.Timeout); err != nil {
		return nil, err
	}
	return &Cache{config: applyConfigDefaults(config)}, nil
}

func applyConfigDefaults(config Config) Config {
	if config.Timeout == 0 {
		config.Timeout = 500 * time.Millisecond
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 100
	}
	return config
}

// Factory returns a cache constructor for pipeline.WithCache. Each call
// yields a cache under "<prefix>:<random id>".
func Factory(client redis.UniversalClient, prefix string) func() pipeline.ResultCache {
	return func() pipeline.ResultCache {
		c, err := New(Config{
			Redis:  client,
			Prefix: fmt.Sprintf("%s:%s", prefix, uuid.NewString()),
		})
		if err != nil {
			// Invalid arguments fall back to a process-local cache.
			return pipeline.NewMemoryCache()
		}
		return c
	}
}

// Prefix returns the key prefix.
func (c *Cache) Prefix() string {
	return c.config.Prefix
}

func (c *Cache) redisKey(key string) string {
	return c.config.Prefix + ":" + key
}

// Get implements pipeline.ResultCache.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	payload, err := c.config.Redis.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &RedisError{"get", err}
	}

	var value interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, false, &RedisError{"decode", err}
	}
	return value, true, nil
}

// Set implements pipeline.ResultCache.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return &RedisError{"encode", err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.config.Redis.Set(ctx, c.redisKey(key), payload, ttl).Err(); err != nil {
		return &RedisError{"set", err}
	}
	return nil
}

// Clear implements pipeline.ResultCache by deleting every key under the prefix.
func (c *Cache) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.config.Redis.Scan(ctx, cursor, c.config.Prefix+":*", c.config.ScanCount).Result()
		if err != nil {
			return &RedisError{"scan", err}
		}
		if len(keys) > 0 {
			pipe := c.config.Redis.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return &RedisError{"clear", err}
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis result cache " + e.Operation + " failed: " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}
