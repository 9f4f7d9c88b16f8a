// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"time"
)

// TypedCache provides type-safe caching operations using generics.
// It wraps a Cache implementation and handles JSON serialization.
type TypedCache[T any] struct {
	cache      Cache
	defaultTTL time.Duration
}

// NewTypedCache creates a new TypedCache wrapping the given cache implementation.
func NewTypedCache[T any](cache Cache, defaultTTL time.Duration) *TypedCache[T] {
	return &TypedCache[T]{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// Get returns the value and true if found and decodable.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var value T
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false
	}
	return value, true
}

// Set stores a value with ttl, or the default TTL when ttl is zero.
func (c *TypedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, key, data, ttl)
}

// GetOrSet returns the cached value for key, or computes it with fn and
// stores it for the TTL fn returns. Cache write errors are ignored because
// the computed value is still valid.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, fn func() (T, time.Duration, error)) (T, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, ttl, err := fn()
	if err != nil {
		return value, err
	}

	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}

// Invalidate removes every key under prefix.
func (c *TypedCache[T]) Invalidate(ctx context.Context, prefix string) error {
	return c.cache.DeleteByPrefix(ctx, prefix)
}
