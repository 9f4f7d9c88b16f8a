// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// Promotion flag columns accepted by PromotedQuery.Flag.
const (
	FlagFeatured = "featured"
	FlagPinned   = "pinned"
	FlagTrending = "trending"
)

// PromotedQuery selects published items for a promotion slot.
type PromotedQuery struct {
	// Flag restricts to items with the named boolean set.
	Flag string
	// SponsoredAt restricts to items whose sponsorship is open at this instant.
	SponsoredAt *time.Time
	// Boosted restricts to boost_level > 0 and orders by boost level first.
	Boosted bool

	Kind         model.Kind
	HomepageOnly bool
	Category     string
	CampaignID   string
	Limit        int
}

// BuildPromotedQuery returns the SQL and arguments for q.
func BuildPromotedQuery(q PromotedQuery) (string, []any, error) {
	b := sq.Select(contentColumns...).
		From("content_items").
		Where(sq.Eq{"status": string(model.StatusPublished)})

	switch q.Flag {
	case "":
	case FlagFeatured, FlagPinned, FlagTrending:
		b = b.Where(sq.Eq{q.Flag: true})
	default:
		return "", nil, fmt.Errorf("unknown promotion flag %q", q.Flag)
	}

	if q.SponsoredAt != nil {
		b = b.Where(sq.Gt{"sponsored_until": formatTime(*q.SponsoredAt)})
	}
	if q.Kind != "" {
		b = b.Where(sq.Eq{"kind": string(q.Kind)})
	}
	if q.HomepageOnly {
		b = b.Where(sq.Eq{"show_on_homepage": true})
	}
	if q.Category != "" {
		b = b.Where(sq.Eq{"promotion_category": q.Category})
	}
	if q.CampaignID != "" {
		b = b.Where(sq.Eq{"campaign_id": q.CampaignID})
	}

	if q.Boosted {
		b = b.Where(sq.Gt{"boost_level": 0}).OrderBy("boost_level DESC")
	}
	b = b.OrderBy("publish_date DESC", "id ASC")

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	return b.ToSql()
}

// ListPromoted returns published items matching q.
func (q *Queries) ListPromoted(ctx context.Context, pq PromotedQuery) ([]model.ContentItem, error) {
	query, args, err := BuildPromotedQuery(pq)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(fmt.Errorf("list promoted: %w", err))
	}
	items, err := scanContentRows(rows)
	if err != nil {
		return nil, Classify(fmt.Errorf("list promoted: %w", err))
	}
	return items, nil
}
