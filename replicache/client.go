// Package replicache is a Cache backend (cache.Cache) that replicates job
// entries across orchestrator instances over Redis, following the same
// local-mirror-plus-replication-stream architecture as the teacher's
// redis_stream package, but carrying job.State codec payloads instead of
// matchmaking ticket/assignment protos.
package replicache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config collects every Redis-related knob the cache backend needs.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PoolTimeout  time.Duration

	// LockTTL bounds how long a ticket's underlying distributed lock is
	// held before it is considered abandoned.
	LockTTL time.Duration

	// StreamName is the Redis stream entries are replicated through.
	StreamName string

	// RetentionWindow bounds how long replicated entries survive in the
	// stream before XTRIM reclaims them.
	RetentionWindow time.Duration

	// DialMaxElapsedTime bounds the replication connection's dial retry loop.
	DialMaxElapsedTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = 30 * time.Second
	}
	if c.LockTTL == 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.StreamName == "" {
		c.StreamName = "orchestrator-cache-replication"
	}
	if c.RetentionWindow == 0 {
		c.RetentionWindow = 24 * time.Hour
	}
	if c.DialMaxElapsedTime == 0 {
		c.DialMaxElapsedTime = time.Minute
	}
	return c
}

// client wraps go-redis for the key/hash operations the cache needs on top
// of the plain Get/Set/HSet pattern.
type client struct {
	rdb *redis.Client
	ctx context.Context
}

func newClient(ctx context.Context, cfg Config) (*client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &client{rdb: rdb, ctx: ctx}, nil
}

func (c *client) Close() error {
	return c.rdb.Close()
}

func (c *client) hGetAll(key string) (map[string]string, error) {
	return c.rdb.HGetAll(c.ctx, key).Result()
}

func (c *client) hSet(key string, values map[string]any) error {
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	return c.rdb.HSet(c.ctx, key, args...).Err()
}

func (c *client) del(key string) error {
	return c.rdb.Del(c.ctx, key).Err()
}

func (c *client) setNX(key, value string, expiry time.Duration) (bool, error) {
	return c.rdb.SetNX(c.ctx, key, value, expiry).Result()
}

func (c *client) eval(script string, keys []string, args ...any) (any, error) {
	return c.rdb.Eval(c.ctx, script, keys, args...).Result()
}
