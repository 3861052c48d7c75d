package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
)

// RedisConfig contains Redis connection settings for the directory cache.
type RedisConfig struct {
	RedisURL       string
	MaxConnections int
	MinIdleConns   int
	DefaultTTL     time.Duration
	KeyPrefix      string
}

// RedisDirectoryCache shares the email directory across instances through
// Redis. Every failure path degrades to a cache miss.
type RedisDirectoryCache struct {
	client *redis.Client
	config *RedisConfig
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisDirectoryCache connects to Redis and verifies the connection.
func NewRedisDirectoryCache(config *RedisConfig, log *logger.Logger) (*RedisDirectoryCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Directory cache initialized",
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return &RedisDirectoryCache{
		client: client,
		config: config,
		logger: log,
	}, nil
}

func (c *RedisDirectoryCache) key() string {
	return c.config.KeyPrefix + ":email_directory"
}

// Get fetches the cached directory, treating every error as a miss.
func (c *RedisDirectoryCache) Get(ctx context.Context) (Directory, bool) {
	data, err := c.client.Get(ctx, c.key()).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	} else if err != nil {
		c.logger.Error("Directory cache lookup failed", zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}

	var dir Directory
	if err := json.Unmarshal([]byte(data), &dir); err != nil {
		c.logger.Error("Failed to unmarshal cached directory", zap.Error(err))
		c.client.Del(ctx, c.key())
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return dir, true
}

// Set stores the directory with the configured TTL.
func (c *RedisDirectoryCache) Set(ctx context.Context, dir Directory) {
	data, err := json.Marshal(dir)
	if err != nil {
		c.logger.Error("Failed to marshal directory for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.key(), data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache directory", zap.Error(err))
	}
}

// Invalidate drops the cached directory.
func (c *RedisDirectoryCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil {
		c.logger.Error("Failed to invalidate directory cache", zap.Error(err))
	}
}

// Stats returns hit/miss counters.
func (c *RedisDirectoryCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close closes the Redis connection.
func (c *RedisDirectoryCache) Close() error {
	return c.client.Close()
}

// MemoryDirectoryCache is the in-process fallback used when Redis is not
// configured.
type MemoryDirectoryCache struct {
	cache *gocache.Cache
}

const memoryDirectoryKey = "email_directory"

// NewMemoryDirectoryCache creates an in-process directory cache.
func NewMemoryDirectoryCache(ttl time.Duration) *MemoryDirectoryCache {
	return &MemoryDirectoryCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryDirectoryCache) Get(_ context.Context) (Directory, bool) {
	if v, ok := c.cache.Get(memoryDirectoryKey); ok {
		return v.(Directory), true
	}
	return nil, false
}

func (c *MemoryDirectoryCache) Set(_ context.Context, dir Directory) {
	c.cache.Set(memoryDirectoryKey, dir, gocache.DefaultExpiration)
}

func (c *MemoryDirectoryCache) Invalidate(_ context.Context) {
	c.cache.Delete(memoryDirectoryKey)
}
