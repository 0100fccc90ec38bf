// Package cache is a Redis-backed read-side cache for the hot dashboard
// queries. The service stays fully functional with caching disabled.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"visadesk/internal/config"
)

// Cache wraps the Redis client. All methods are no-ops when disabled.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// New connects to Redis, or returns a disabled cache when turned off in
// config.
func New(cfg *config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	logger = logger.Named("cache")
	if !cfg.Enabled {
		logger.Info("Cache disabled")
		return &Cache{logger: logger}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	logger.Info("Connected to redis", zap.String("address", cfg.Address))
	return &Cache{client: client, ttl: cfg.CacheTTL, logger: logger, enabled: true}, nil
}

// GetJSON loads a cached value into dest. Returns false on a miss or any
// cache error; the caller falls through to the database either way.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !c.enabled {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON stores a value under the configured TTL. Failures are logged,
// never surfaced.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) {
	if !c.enabled {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePrefix drops every key under a prefix. Used after mutations
// that touch the cached dashboards.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if !c.enabled {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Cache scan failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("Cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// Health pings Redis. A disabled cache is always healthy.
func (c *Cache) Health(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}
