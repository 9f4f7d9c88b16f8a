// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package promotion selects and orders the published items shown in the
// promoted display slots. It only reads committed data and never changes
// workflow state.
package promotion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// Slot names a promoted display area.
type Slot string

// Promotion slots
const (
	SlotFeatured  Slot = "featured"
	SlotPinned    Slot = "pinned"
	SlotTrending  Slot = "trending"
	SlotSponsored Slot = "sponsored"
	SlotBoosted   Slot = "boosted"
)

// AllSlots lists every slot.
var AllSlots = []Slot{SlotFeatured, SlotPinned, SlotTrending, SlotSponsored, SlotBoosted}

// ParseSlot validates a slot name.
func ParseSlot(s string) (Slot, error) {
	for _, slot := range AllSlots {
		if string(slot) == s {
			return slot, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSlot, s)
}

// Options narrows a slot query.
type Options struct {
	// Limit <= 0 selects the slot's configured default.
	Limit        int
	Kind         model.Kind
	HomepageOnly bool
	Category     string
	CampaignID   string
}

func (o Options) cacheKey(slot Slot, limit int) string {
	return strings.Join([]string{
		cachePrefix + string(slot),
		strconv.Itoa(limit),
		string(o.Kind),
		strconv.FormatBool(o.HomepageOnly),
		o.Category,
		o.CampaignID,
	}, ":")
}

// query builds the store query for slot at now.
func (o Options) query(slot Slot, limit int, now time.Time) store.PromotedQuery {
	q := store.PromotedQuery{
		Kind:         o.Kind,
		HomepageOnly: o.HomepageOnly,
		Category:     o.Category,
		CampaignID:   o.CampaignID,
		Limit:        limit,
	}
	switch slot {
	case SlotFeatured:
		q.Flag = store.FlagFeatured
	case SlotPinned:
		q.Flag = store.FlagPinned
	case SlotTrending:
		q.Flag = store.FlagTrending
	case SlotSponsored:
		q.SponsoredAt = &now
	case SlotBoosted:
		q.Boosted = true
	}
	return q
}

// Item is one entry of a slot.
type Item struct {
	ID                string     `json:"id"`
	Kind              model.Kind `json:"kind"`
	Title             string     `json:"title"`
	Slug              string     `json:"slug"`
	PublishDate       time.Time  `json:"publish_date"`
	Featured          bool       `json:"featured"`
	Pinned            bool       `json:"pinned"`
	Trending          bool       `json:"trending"`
	BoostLevel        int        `json:"boost_level"`
	SponsoredUntil    *time.Time `json:"sponsored_until,omitempty"`
	CampaignID        *string    `json:"campaign_id,omitempty"`
	PromotionCategory string     `json:"promotion_category,omitempty"`
	ShowOnHomepage    bool       `json:"show_on_homepage"`
}

func itemFrom(c model.ContentItem) Item {
	it := Item{
		ID:                c.ID,
		Kind:              c.Kind,
		Title:             c.Title,
		Slug:              c.Slug,
		Featured:          c.Featured,
		Pinned:            c.Pinned,
		Trending:          c.Trending,
		BoostLevel:        c.BoostLevel,
		SponsoredUntil:    c.SponsoredUntil,
		CampaignID:        c.CampaignID,
		PromotionCategory: c.PromotionCategory,
		ShowOnHomepage:    c.ShowOnHomepage,
	}
	if c.PublishDate != nil {
		it.PublishDate = *c.PublishDate
	}
	return it
}
