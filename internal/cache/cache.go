// Package cache is the cache-aside layer in front of the durable store.
// It is strictly a performance optimization: every method degrades to a
// no-op on Redis failure, and callers must behave identically when the
// cache is empty or down.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"canteen-order-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	cartKeyPrefix  = "cart:"
	orderKeyPrefix = "order:"
)

type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient creates a Redis-backed cache client
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl, logger: util.GetLogger()}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CartKey returns the cache key for a user's cart view.
func CartKey(userID string) string {
	return cartKeyPrefix + userID
}

// OrderKey returns the cache key for an order view.
func OrderKey(orderID string) string {
	return orderKeyPrefix + orderID
}

// OrderListPattern matches every cached order listing for a user.
func OrderListPattern(userID string) string {
	return fmt.Sprintf("orders:%s:*", userID)
}

// Get looks up key and unmarshals into dest. Returns false on miss or
// on any Redis error.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) bool {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

// Set stores value under key with the configured TTL, best-effort.
func (c *Client) Set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes keys, best-effort.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// DeletePattern sweeps every key matching pattern, best-effort. Used to
// drop stale per-user order listings on order creation.
func (c *Client) DeletePattern(ctx context.Context, pattern string) {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		c.Delete(ctx, keys...)
	}
}
