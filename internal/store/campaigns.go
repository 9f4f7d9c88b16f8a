// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

const campaignSelect = `SELECT id, name, description, start_date, end_date, target_audience, budget, goals, created_at
	FROM campaigns`

func scanCampaign(row rowScanner) (model.Campaign, error) {
	var (
		c          model.Campaign
		start, end sql.NullString
		created    string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &start, &end, &c.TargetAudience, &c.Budget, &c.Goals, &created); err != nil {
		return model.Campaign{}, err
	}
	var err error
	if c.StartDate, err = parseNullTime(start); err != nil {
		return model.Campaign{}, err
	}
	if c.EndDate, err = parseNullTime(end); err != nil {
		return model.Campaign{}, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return model.Campaign{}, err
	}
	return c, nil
}

// CreateCampaign inserts a campaign.
func (q *Queries) CreateCampaign(ctx context.Context, c model.Campaign) error {
	err := q.exec(ctx, `
		INSERT INTO campaigns (id, name, description, start_date, end_date, target_audience, budget, goals, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, formatNullTime(c.StartDate), formatNullTime(c.EndDate),
		c.TargetAudience, c.Budget, c.Goals, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// GetCampaign returns a campaign by id or a workflow.ErrNotFound error.
func (q *Queries) GetCampaign(ctx context.Context, id string) (model.Campaign, error) {
	c, err := scanCampaign(q.db.QueryRowContext(ctx, campaignSelect+" WHERE id = ?", id))
	if IsNotFound(err) {
		return model.Campaign{}, workflow.Errorf(workflow.CodeNotFound, "campaign %s not found", id)
	}
	if err != nil {
		return model.Campaign{}, Classify(fmt.Errorf("get campaign %s: %w", id, err))
	}
	return c, nil
}

// ListCampaigns returns campaigns newest first.
func (q *Queries) ListCampaigns(ctx context.Context, limit, offset int) ([]model.Campaign, error) {
	rows, err := q.db.QueryContext(ctx, campaignSelect+" ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, Classify(fmt.Errorf("list campaigns: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
