// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

var contentColumns = []string{
	"id", "kind", "title", "slug", "author_id", "status", "workflow_stage",
	"scheduled_publish_date", "publish_date",
	"featured", "pinned", "trending", "boost_level", "sponsored_until",
	"campaign_id", "promotion_category", "seasonal", "show_on_homepage",
	"version", "created_at", "updated_at", "details",
}

var contentSelect = "SELECT " + strings.Join(contentColumns, ", ") + " FROM content_items"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (model.ContentItem, error) {
	var (
		item                          model.ContentItem
		kind, status, stage           string
		scheduled, published, sponsor sql.NullString
		campaignID, details           sql.NullString
		createdAt, updatedAt          string
	)
	err := row.Scan(
		&item.ID, &kind, &item.Title, &item.Slug, &item.AuthorID, &status, &stage,
		&scheduled, &published,
		&item.Featured, &item.Pinned, &item.Trending, &item.BoostLevel, &sponsor,
		&campaignID, &item.PromotionCategory, &item.Seasonal, &item.ShowOnHomepage,
		&item.Version, &createdAt, &updatedAt, &details,
	)
	if err != nil {
		return model.ContentItem{}, err
	}

	item.Kind = model.Kind(kind)
	item.Status = model.Status(status)
	item.WorkflowStage = model.Stage(stage)
	item.CampaignID = stringPtr(campaignID)
	if details.Valid && details.String != "" {
		item.Details = json.RawMessage(details.String)
	}

	if item.ScheduledPublishDate, err = parseNullTime(scheduled); err != nil {
		return model.ContentItem{}, err
	}
	if item.PublishDate, err = parseNullTime(published); err != nil {
		return model.ContentItem{}, err
	}
	if item.SponsoredUntil, err = parseNullTime(sponsor); err != nil {
		return model.ContentItem{}, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.ContentItem{}, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.ContentItem{}, err
	}
	return item, nil
}

func scanContentRows(rows *sql.Rows) ([]model.ContentItem, error) {
	defer func() { _ = rows.Close() }()

	var items []model.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func detailsValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// CreateContent inserts a new content item.
func (q *Queries) CreateContent(ctx context.Context, item model.ContentItem) error {
	query := "INSERT INTO content_items (" + strings.Join(contentColumns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(contentColumns)), ", ") + ")"

	return q.exec(ctx, query,
		item.ID, string(item.Kind), item.Title, item.Slug, item.AuthorID,
		string(item.Status), string(item.WorkflowStage),
		formatNullTime(item.ScheduledPublishDate), formatNullTime(item.PublishDate),
		item.Featured, item.Pinned, item.Trending, item.BoostLevel, formatNullTime(item.SponsoredUntil),
		nullString(item.CampaignID), item.PromotionCategory, item.Seasonal, item.ShowOnHomepage,
		item.Version, formatTime(item.CreatedAt), formatTime(item.UpdatedAt), detailsValue(item.Details),
	)
}

// GetContent returns the item with the given id or a workflow.ErrNotFound error.
func (q *Queries) GetContent(ctx context.Context, id string) (model.ContentItem, error) {
	item, err := scanContent(q.db.QueryRowContext(ctx, contentSelect+" WHERE id = ?", id))
	if IsNotFound(err) {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeNotFound, "content item %s not found", id)
	}
	if err != nil {
		return model.ContentItem{}, Classify(fmt.Errorf("get content %s: %w", id, err))
	}
	return item, nil
}

// SlugExists reports whether a kind already uses slug.
func (q *Queries) SlugExists(ctx context.Context, kind model.Kind, slug string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM content_items WHERE kind = ? AND slug = ?", string(kind), slug,
	).Scan(&n)
	if err != nil {
		return false, Classify(fmt.Errorf("check slug: %w", err))
	}
	return n > 0, nil
}

// UpdateWorkflowStateParams describes a conditional workflow write.
type UpdateWorkflowStateParams struct {
	ID                   string
	ExpectedStatus       model.Status
	ExpectedStage        model.Stage
	Status               model.Status
	Stage                model.Stage
	ScheduledPublishDate *time.Time
	PublishDate          *time.Time
	UpdatedAt            time.Time
}

// UpdateWorkflowState writes new workflow fields only if the row still holds
// the expected status and stage. It returns the number of rows changed; zero
// means another writer got there first.
func (q *Queries) UpdateWorkflowState(ctx context.Context, arg UpdateWorkflowStateParams) (int64, error) {
	return q.execRows(ctx, `
		UPDATE content_items
		SET status = ?, workflow_stage = ?, scheduled_publish_date = ?, publish_date = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND workflow_stage = ?`,
		string(arg.Status), string(arg.Stage),
		formatNullTime(arg.ScheduledPublishDate), formatNullTime(arg.PublishDate),
		formatTime(arg.UpdatedAt),
		arg.ID, string(arg.ExpectedStatus), string(arg.ExpectedStage),
	)
}

// ListDueScheduled returns scheduled items whose publish date is at or before
// now, oldest due first.
func (q *Queries) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]model.ContentItem, error) {
	rows, err := q.db.QueryContext(ctx, contentSelect+`
		WHERE status = ? AND scheduled_publish_date IS NOT NULL AND scheduled_publish_date <= ?
		ORDER BY scheduled_publish_date ASC, id ASC
		LIMIT ?`,
		string(model.StatusScheduled), formatTime(now), limit,
	)
	if err != nil {
		return nil, Classify(fmt.Errorf("list due scheduled: %w", err))
	}
	items, err := scanContentRows(rows)
	if err != nil {
		return nil, Classify(fmt.Errorf("list due scheduled: %w", err))
	}
	return items, nil
}

// PublishScheduledParams describes the scheduled → published write.
type PublishScheduledParams struct {
	ID          string
	PublishDate time.Time
	Now         time.Time
}

// PublishScheduled moves a due scheduled item to published. The update only
// applies while the row is still scheduled and due, so at most one of several
// concurrent callers changes it. It returns the number of rows changed.
func (q *Queries) PublishScheduled(ctx context.Context, arg PublishScheduledParams) (int64, error) {
	return q.execRows(ctx, `
		UPDATE content_items
		SET status = ?, workflow_stage = ?, publish_date = COALESCE(publish_date, ?),
		    scheduled_publish_date = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND scheduled_publish_date IS NOT NULL AND scheduled_publish_date <= ?`,
		string(model.StatusPublished), string(model.StagePublished),
		formatTime(arg.PublishDate), formatTime(arg.Now),
		arg.ID, string(model.StatusScheduled), formatTime(arg.Now),
	)
}

// UpdatePromotionParams describes an optimistic promotion write.
type UpdatePromotionParams struct {
	ID              string
	ExpectedVersion int64
	Promotion       model.Promotion
	UpdatedAt       time.Time
}

// UpdatePromotion replaces the promotion attributes if the row version still
// matches. It returns the number of rows changed.
func (q *Queries) UpdatePromotion(ctx context.Context, arg UpdatePromotionParams) (int64, error) {
	p := arg.Promotion
	return q.execRows(ctx, `
		UPDATE content_items
		SET featured = ?, pinned = ?, trending = ?, boost_level = ?, sponsored_until = ?,
		    campaign_id = ?, promotion_category = ?, seasonal = ?, show_on_homepage = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Featured, p.Pinned, p.Trending, p.BoostLevel, formatNullTime(p.SponsoredUntil),
		nullString(p.CampaignID), p.PromotionCategory, p.Seasonal, p.ShowOnHomepage,
		formatTime(arg.UpdatedAt),
		arg.ID, arg.ExpectedVersion,
	)
}

// CountByStatus returns the number of items per status.
func (q *Queries) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM content_items GROUP BY status")
	if err != nil {
		return nil, Classify(fmt.Errorf("count by status: %w", err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count by status: %w", err)
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := q.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return Classify(err)
}

func (q *Queries) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = q.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return 0, Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
