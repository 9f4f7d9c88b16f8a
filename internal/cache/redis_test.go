// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRedis connects to EDITORIAL_TEST_REDIS_URL or skips.
func newTestRedis(t *testing.T, prefix string) *RedisCache {
	t.Helper()
	url := os.Getenv("EDITORIAL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EDITORIAL_TEST_REDIS_URL not set")
	}

	opts := DefaultRedisCacheOptions()
	opts.URL = url
	opts.Prefix = prefix
	c, err := NewRedisCache(opts)
	require.NoError(t, err)
	require.NoError(t, c.Clear(context.Background()))
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestRedis(t, "editorial-test:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "slot:featured", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "slot:featured")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, c.Delete(ctx, "slot:featured"))
	_, err = c.Get(ctx, "slot:featured")
	assert.ErrorIs(t, err, ErrCacheMiss)

	s := c.Stats()
	assert.Equal(t, "redis", s.Backend)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Zero(t, s.Errors)
}

func TestRedisCachePrefixInvalidationSpansBatches(t *testing.T) {
	c := newTestRedis(t, "editorial-test:")
	ctx := context.Background()

	for i := range scanBatch + 25 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("slot:%d", i), []byte("x"), time.Minute))
	}
	require.NoError(t, c.Set(ctx, "campaign:c1", []byte("keep"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "slot:"))
	for _, k := range []string{"slot:0", fmt.Sprintf("slot:%d", scanBatch+24)} {
		_, err := c.Get(ctx, k)
		assert.ErrorIs(t, err, ErrCacheMiss, k)
	}
	_, err := c.Get(ctx, "campaign:c1")
	assert.NoError(t, err)
}

func TestRedisCacheNamespacesAreIsolated(t *testing.T) {
	a := newTestRedis(t, "editorial-test-a:")
	b := newTestRedis(t, "editorial-test-b:")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "slot:featured", []byte("a"), time.Minute))
	require.NoError(t, b.Set(ctx, "slot:featured", []byte("b"), time.Minute))
	require.NoError(t, a.Clear(ctx))

	got, err := b.Get(ctx, "slot:featured")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestRedisCacheExpiry(t *testing.T) {
	c := newTestRedis(t, "editorial-test:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 100*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return err == ErrCacheMiss
	}, 2*time.Second, 50*time.Millisecond)
}

func TestNewRedisCacheValidation(t *testing.T) {
	_, err := NewRedisCache(RedisCacheOptions{})
	assert.Error(t, err)

	_, err = NewRedisCache(RedisCacheOptions{URL: "http://not-redis"})
	assert.ErrorContains(t, err, "parsing redis URL")
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	opts := DefaultRedisCacheOptions()
	opts.URL = "redis://127.0.0.1:1/0"
	opts.ConnectAttempts = 2
	opts.DialTimeout = 200 * time.Millisecond

	_, err := NewRedisCache(opts)
	assert.ErrorContains(t, err, "connecting to redis")
}
