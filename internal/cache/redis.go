// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// scanBatch is the SCAN COUNT hint used by prefix invalidation.
const scanBatch = 200

// RedisCache keeps slot results in Redis so every API instance sees the
// same invalidations.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	closed     atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errs   atomic.Int64
}

// RedisCacheOptions configures the Redis cache.
type RedisCacheOptions struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string
	// Prefix namespaces every key, e.g. "editorial:".
	Prefix string

	DefaultTTL  time.Duration
	PoolSize    int
	DialTimeout time.Duration
	// OpTimeout bounds reads and writes on the connection.
	OpTimeout time.Duration
	// ConnectAttempts is how many pings are tried before giving up.
	ConnectAttempts uint64
}

// DefaultRedisCacheOptions returns the defaults used by New.
func DefaultRedisCacheOptions() RedisCacheOptions {
	return RedisCacheOptions{
		Prefix:          "editorial:",
		DefaultTTL:      time.Minute,
		PoolSize:        10,
		DialTimeout:     2 * time.Second,
		OpTimeout:       500 * time.Millisecond,
		ConnectAttempts: 3,
	}
}

// NewRedisCache connects to Redis, retrying the initial ping with a short
// exponential backoff.
func NewRedisCache(opts RedisCacheOptions) (*RedisCache, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.OpTimeout > 0 {
		redisOpts.ReadTimeout = opts.OpTimeout
		redisOpts.WriteTimeout = opts.OpTimeout
	}

	client := redis.NewClient(redisOpts)
	if err := ping(client, opts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{
		client:     client,
		prefix:     opts.Prefix,
		defaultTTL: opts.DefaultTTL,
	}, nil
}

func ping(client *redis.Client, opts RedisCacheOptions) error {
	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(100*time.Millisecond))

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (c *RedisCache) key(k string) string { return c.prefix + k }

// Get returns ErrCacheMiss for absent keys. Transport errors are counted
// and returned so callers can fall back to the database.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		return nil, ErrCacheMiss
	case err != nil:
		c.errs.Add(1)
		return nil, err
	}
	c.hits.Add(1)
	return val, nil
}

// Set stores value with ttl. A zero ttl uses the default TTL; a negative
// ttl stores nothing.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.errs.Add(1)
		return err
	}
	c.sets.Add(1)
	return nil
}

// Delete removes one key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.client.Unlink(ctx, c.key(key)).Err()
}

// DeleteByPrefix removes every key under prefix, relative to the cache's
// own namespace.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.unlinkMatching(ctx, c.key(prefix)+"*")
}

// Clear removes every key in the cache's namespace.
func (c *RedisCache) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.unlinkMatching(ctx, c.prefix+"*")
}

// unlinkMatching walks the keyspace with SCAN and unlinks each batch in a
// pipeline. Keys written during the walk may survive.
func (c *RedisCache) unlinkMatching(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.Unlink(ctx, batch...)
			return nil
		})
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				c.errs.Add(1)
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		c.errs.Add(1)
		return err
	}
	if err := flush(); err != nil {
		c.errs.Add(1)
		return err
	}
	return nil
}

// Close closes the client once.
func (c *RedisCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.client.Close()
	}
	return nil
}

// Stats returns this instance's counters. Items is not tracked.
func (c *RedisCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return Stats{
		Backend: "redis",
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Errors:  c.errs.Load(),
		HitRate: hitRate(hits, misses),
	}
}

// ResetStats zeroes the counters.
func (c *RedisCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.errs.Store(0)
}

var (
	_ Cache         = (*RedisCache)(nil)
	_ StatsProvider = (*RedisCache)(nil)
)
