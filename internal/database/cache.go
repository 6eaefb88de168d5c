package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned when a key is absent or the cache is disabled.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON values in redis. A Cache with a nil client is a valid
// no-op cache.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	DashboardStatsKey = "dashboard:stats"
	SystemHealthKey   = "system:health"
	IdentityKey       = "auth:identity:%s"
)

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Set stores value as JSON under key.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get decodes the JSON stored under key into result.
func (c *Cache) Get(ctx context.Context, key string, result interface{}) error {
	if !c.Enabled() {
		return ErrCacheMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Remember returns the cached value for key, or calls load, caches its
// result and returns it. Cache failures are logged and never fail the call.
func (c *Cache) Remember(ctx context.Context, key string, expiration time.Duration, result interface{}, load func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, result)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, value, expiration); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return json.Unmarshal(data, result)
}
