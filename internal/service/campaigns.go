// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/util"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// Campaign list paging bounds.
const (
	DefaultCampaignPageSize = 20
	MaxCampaignPageSize     = 100
)

// NewCampaign is the input to CreateCampaign.
type NewCampaign struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	Budget         int64      `json:"budget"`
	Goals          string     `json:"goals,omitempty"`
}

// CreateCampaign stores a new campaign. Campaign management is an elevated
// editorial operation and needs the publish capability.
func (s *EditorialService) CreateCampaign(ctx context.Context, in NewCampaign, actor workflow.Actor) (model.Campaign, error) {
	if err := requireActor(actor, workflow.CapPublish); err != nil {
		return model.Campaign{}, err
	}

	name := strings.TrimSpace(util.SanitizeText(in.Name))
	if name == "" {
		return model.Campaign{}, workflow.Errorf(workflow.CodeInvalidInput, "campaign name is required")
	}
	if in.Budget < 0 {
		return model.Campaign{}, workflow.Errorf(workflow.CodeInvalidInput, "budget cannot be negative")
	}
	if in.StartDate != nil && in.EndDate != nil && !in.EndDate.After(*in.StartDate) {
		return model.Campaign{}, workflow.Errorf(workflow.CodeInvalidInput, "end date must be after start date")
	}

	c := model.Campaign{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    util.SanitizeText(in.Description),
		StartDate:      utcPtr(in.StartDate),
		EndDate:        utcPtr(in.EndDate),
		TargetAudience: util.SanitizeText(in.TargetAudience),
		Budget:         in.Budget,
		Goals:          util.SanitizeText(in.Goals),
		CreatedAt:      s.clock.Now().UTC(),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.queries.CreateCampaign(ctx, c); err != nil {
		return model.Campaign{}, err
	}
	c.Active = c.ActiveAt(c.CreatedAt)
	s.logger.Info("campaign created", "category", model.EventCategoryPromotion, "campaign_id", c.ID, "actor", actor.ID)
	return c, nil
}

// GetCampaign returns a campaign.
func (s *EditorialService) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	c, err := s.queries.GetCampaign(ctx, id)
	if err != nil {
		return model.Campaign{}, err
	}
	c.Active = c.ActiveAt(s.clock.Now())
	return c, nil
}

// ListCampaigns returns a page of campaigns, newest first.
func (s *EditorialService) ListCampaigns(ctx context.Context, limit, offset int) ([]model.Campaign, error) {
	if limit <= 0 {
		limit = DefaultCampaignPageSize
	}
	if limit > MaxCampaignPageSize {
		limit = MaxCampaignPageSize
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	campaigns, err := s.queries.ListCampaigns(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range campaigns {
		campaigns[i].Active = campaigns[i].ActiveAt(now)
	}
	return campaigns, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
