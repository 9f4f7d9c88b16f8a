// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package promotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/ocms-editorial/internal/cache"
	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// ErrUnknownSlot is returned for a slot name that does not exist.
var ErrUnknownSlot = errors.New("unknown promotion slot")

const cachePrefix = "slot:"

// MaxLimit caps the number of items any slot returns.
const MaxLimit = 100

// Querier reads published items for a slot. *store.Queries satisfies it.
type Querier interface {
	ListPromoted(ctx context.Context, q store.PromotedQuery) ([]model.ContentItem, error)
}

// Config tunes the engine.
type Config struct {
	// DefaultLimits holds the per-slot limit used when callers pass <= 0.
	DefaultLimits map[Slot]int
	// FallbackLimit applies to slots missing from DefaultLimits.
	FallbackLimit int
	// CacheTTL is the lifetime of a cached slot result. Zero disables caching.
	CacheTTL time.Duration
	// QueryTimeout bounds each storage read.
	QueryTimeout time.Duration
}

// DefaultConfig returns the built-in slot sizes.
func DefaultConfig() Config {
	return Config{
		DefaultLimits: map[Slot]int{
			SlotFeatured:  6,
			SlotPinned:    3,
			SlotTrending:  10,
			SlotSponsored: 4,
			SlotBoosted:   10,
		},
		FallbackLimit: 10,
		CacheTTL:      time.Minute,
		QueryTimeout:  5 * time.Second,
	}
}

type cachedSlot struct {
	Items []Item `json:"items"`
}

// Engine computes promoted slots.
type Engine struct {
	q      Querier
	cache  *cache.TypedCache[cachedSlot]
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine. c may be nil to disable caching.
func NewEngine(q Querier, c cache.Cache, clk clock.Clock, cfg Config, logger *slog.Logger) *Engine {
	e := &Engine{
		q:      q,
		clock:  clk,
		cfg:    cfg,
		logger: logger,
	}
	if c != nil && cfg.CacheTTL > 0 {
		e.cache = cache.NewTypedCache[cachedSlot](c, cfg.CacheTTL)
	}
	return e
}

// Limit resolves the effective limit for slot.
func (e *Engine) Limit(slot Slot, requested int) int {
	limit := requested
	if limit <= 0 {
		limit = e.cfg.DefaultLimits[slot]
		if limit <= 0 {
			limit = e.cfg.FallbackLimit
		}
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// Slot returns the items of one slot, most relevant first.
func (e *Engine) Slot(ctx context.Context, slot Slot, opts Options) ([]Item, error) {
	if _, err := ParseSlot(string(slot)); err != nil {
		return nil, err
	}
	limit := e.Limit(slot, opts.Limit)
	now := e.clock.Now()

	if e.cache == nil {
		items, _, err := e.load(ctx, slot, opts, limit, now)
		return items, err
	}

	key := opts.cacheKey(slot, limit)
	if cached, ok := e.cache.Get(ctx, key); ok && stillEligible(slot, cached.Items, now) {
		return cached.Items, nil
	}

	items, ttl, err := e.load(ctx, slot, opts, limit, now)
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		if err := e.cache.Set(ctx, key, cachedSlot{Items: items}, ttl); err != nil {
			e.logger.Warn("slot cache write failed", "slot", slot, "error", err)
		}
	}
	return items, nil
}

// All computes every slot concurrently with the same options. Slots may
// share items.
func (e *Engine) All(ctx context.Context, opts Options) (map[Slot][]Item, error) {
	var (
		mu  sync.Mutex
		out = make(map[Slot][]Item, len(AllSlots))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range AllSlots {
		g.Go(func() error {
			items, err := e.Slot(gctx, slot, opts)
			if err != nil {
				return fmt.Errorf("slot %s: %w", slot, err)
			}
			mu.Lock()
			out[slot] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops every cached slot result.
func (e *Engine) Invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, cachePrefix); err != nil {
		e.logger.Warn("slot cache invalidation failed", "error", err)
	}
}

// load queries storage and returns the items with the TTL they may be cached for.
func (e *Engine) load(ctx context.Context, slot Slot, opts Options, limit int, now time.Time) ([]Item, time.Duration, error) {
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := e.q.ListPromoted(ctx, opts.query(slot, limit, now))
	if err != nil {
		return nil, 0, err
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		// Only published items are eligible.
		if r.Status != model.StatusPublished {
			continue
		}
		items = append(items, itemFrom(r))
	}

	ttl := e.cfg.CacheTTL
	if slot == SlotSponsored {
		for _, it := range items {
			if it.SponsoredUntil == nil {
				continue
			}
			if remaining := it.SponsoredUntil.Sub(now); remaining < ttl {
				ttl = remaining
			}
		}
	}
	return items, ttl, nil
}

// stillEligible reports whether a cached sponsored result is still valid at
// now. Other slots do not depend on time.
func stillEligible(slot Slot, items []Item, now time.Time) bool {
	if slot != SlotSponsored {
		return true
	}
	for _, it := range items {
		if it.SponsoredUntil == nil || !it.SponsoredUntil.After(now) {
			return false
		}
	}
	return true
}
