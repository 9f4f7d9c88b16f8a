// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is a bounded in-process LRU cache with per-entry expiry.
// It serves single-instance deployments and is the fallback when Redis is
// unreachable.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	closed  bool

	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time
	stopCh     chan struct{}

	stats Stats
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryCacheOptions configures the memory cache.
type MemoryCacheOptions struct {
	DefaultTTL time.Duration
	// MaxSize caps the entry count; the least recently used entry is evicted
	// first. Zero means unbounded.
	MaxSize int
	// CleanupInterval sweeps expired entries in the background. Zero
	// leaves expiry to lookups and evictions.
	CleanupInterval time.Duration
	Now             func() time.Time
}

// NewMemoryCache creates a memory cache.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		now:        now,
		stopCh:     make(chan struct{}),
		stats:      Stats{Backend: "memory"},
	}
	if opts.CleanupInterval > 0 {
		go c.sweepLoop(opts.CleanupInterval)
	}
	return c
}

// Get returns a copy of the stored value.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(el)
		c.stats.Misses++
		return nil, ErrCacheMiss
	}

	c.lru.MoveToFront(el)
	c.stats.Hits++
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A zero ttl uses the default TTL; a negative
// ttl stores nothing.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if ttl < 0 {
		return nil
	}

	e := &memoryEntry{key: key, value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.lru.MoveToFront(el)
	} else {
		c.entries[key] = c.lru.PushFront(e)
		c.evictLocked()
	}
	c.stats.Sets++
	return nil
}

// evictLocked drops expired entries first, then least recently used ones,
// until the cache fits maxSize.
func (c *MemoryCache) evictLocked() {
	if c.maxSize <= 0 || len(c.entries) <= c.maxSize {
		return
	}
	c.sweepLocked()
	for len(c.entries) > c.maxSize {
		c.removeLocked(c.lru.Back())
		c.stats.Evictions++
	}
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*memoryEntry).key)
}

func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryEntry).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
		}
	}
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	clear(c.entries)
	c.lru.Init()
	return nil
}

// Close stops the sweeper. Later calls return ErrCacheClosed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stopCh)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Items = len(c.entries)
	s.HitRate = hitRate(s.Hits, s.Misses)
	return s
}

// ResetStats zeroes the counters.
func (c *MemoryCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{Backend: "memory"}
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked()
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
