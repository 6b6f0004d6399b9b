package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/memory"
)

// RedisCache stores sessions as JSON values with a server-side TTL.
type RedisCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, logger: logger}, nil
}

// Get loads a session. Redis enforces expiry via TTL; the explicit
// ExpiresAt check covers sessions persisted with a longer server TTL.
func (c *RedisCache) Get(ctx context.Context, tenantID, userID string) (*memory.Session, error) {
	data, err := c.rdb.Get(ctx, Key(tenantID, userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess memory.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// An unreadable cached session is equivalent to a miss; the
		// caller reconstructs from durable memory.
		c.logger.Warn("discarding unreadable session",
			zap.String("tenant", tenantID),
			zap.String("user", userID),
			zap.Error(err))
		return nil, nil
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, nil
	}
	return &sess, nil
}

// Put stores a session with the given TTL.
func (c *RedisCache) Put(ctx context.Context, sess *memory.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(sess.TenantID, sess.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a session.
func (c *RedisCache) Delete(ctx context.Context, tenantID, userID string) error {
	if err := c.rdb.Del(ctx, Key(tenantID, userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
