// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"strings"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/util"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// PromotionPatch lists the promotion attributes to change. Nil fields are
// left as they are.
type PromotionPatch struct {
	Featured          *bool      `json:"featured,omitempty"`
	Pinned            *bool      `json:"pinned,omitempty"`
	Trending          *bool      `json:"trending,omitempty"`
	BoostLevel        *int       `json:"boost_level,omitempty"`
	SponsoredUntil    *time.Time `json:"sponsored_until,omitempty"`
	ClearSponsorship  bool       `json:"clear_sponsorship,omitempty"`
	CampaignID        *string    `json:"campaign_id,omitempty"` // "" detaches the campaign
	PromotionCategory *string    `json:"promotion_category,omitempty"`
	Seasonal          *bool      `json:"seasonal,omitempty"`
	ShowOnHomepage    *bool      `json:"show_on_homepage,omitempty"`
}

// apply returns p with the patch applied.
func (patch PromotionPatch) apply(p model.Promotion) model.Promotion {
	if patch.Featured != nil {
		p.Featured = *patch.Featured
	}
	if patch.Pinned != nil {
		p.Pinned = *patch.Pinned
	}
	if patch.Trending != nil {
		p.Trending = *patch.Trending
	}
	if patch.BoostLevel != nil {
		p.BoostLevel = *patch.BoostLevel
	}
	if patch.ClearSponsorship {
		p.SponsoredUntil = nil
	} else if patch.SponsoredUntil != nil {
		at := patch.SponsoredUntil.UTC()
		p.SponsoredUntil = &at
	}
	if patch.CampaignID != nil {
		if id := strings.TrimSpace(*patch.CampaignID); id != "" {
			p.CampaignID = &id
		} else {
			p.CampaignID = nil
		}
	}
	if patch.PromotionCategory != nil {
		p.PromotionCategory = util.SanitizeText(*patch.PromotionCategory)
	}
	if patch.Seasonal != nil {
		p.Seasonal = *patch.Seasonal
	}
	if patch.ShowOnHomepage != nil {
		p.ShowOnHomepage = *patch.ShowOnHomepage
	}
	return p
}

func (patch PromotionPatch) validate() error {
	if patch.BoostLevel != nil && (*patch.BoostLevel < 0 || *patch.BoostLevel > MaxBoostLevel) {
		return workflow.Errorf(workflow.CodeInvalidInput, "boost level must be between 0 and %d", MaxBoostLevel)
	}
	if patch.ClearSponsorship && patch.SponsoredUntil != nil {
		return workflow.Errorf(workflow.CodeInvalidInput, "sponsored_until and clear_sponsorship are mutually exclusive")
	}
	return nil
}

// UpdatePromotion changes an item's promotion attributes. It requires the
// publish capability and succeeds only while the item is still at
// expectedVersion. Promotion edits are not workflow transitions and write no
// history.
func (s *EditorialService) UpdatePromotion(ctx context.Context, id string, patch PromotionPatch, expectedVersion int64, actor workflow.Actor) (model.ContentItem, error) {
	if err := requireActor(actor, workflow.CapPublish); err != nil {
		return model.ContentItem{}, err
	}
	if err := patch.validate(); err != nil {
		return model.ContentItem{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := s.queries.GetContent(ctx, id)
	if err != nil {
		return model.ContentItem{}, err
	}
	if item.Version != expectedVersion {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeConcurrencyLost,
			"content item %s is at version %d, not %d", id, item.Version, expectedVersion)
	}

	next := patch.apply(item.Promotion)
	if next.CampaignID != nil && (item.CampaignID == nil || *item.CampaignID != *next.CampaignID) {
		if _, err := s.queries.GetCampaign(ctx, *next.CampaignID); err != nil {
			if workflow.CodeOf(err) == workflow.CodeNotFound {
				return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "campaign %s does not exist", *next.CampaignID)
			}
			return model.ContentItem{}, err
		}
	}

	now := s.clock.Now().UTC()
	n, err := s.queries.UpdatePromotion(ctx, store.UpdatePromotionParams{
		ID:              id,
		ExpectedVersion: expectedVersion,
		Promotion:       next,
		UpdatedAt:       now,
	})
	if err != nil {
		return model.ContentItem{}, err
	}
	if n == 0 {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeConcurrencyLost, "content item %s was changed concurrently", id)
	}

	item.Promotion = next
	item.Version++
	item.UpdatedAt = now

	s.logger.Info("promotion updated",
		"content_id", id,
		"version", item.Version,
		"actor", actor.ID)

	if s.opts.Slots != nil {
		s.opts.Slots.Invalidate(context.WithoutCancel(ctx))
	}
	return item, nil
}
