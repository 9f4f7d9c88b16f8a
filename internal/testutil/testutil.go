// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the editorial service.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// DiscardLogger creates a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database with migrations applied.
// The database is closed when the test finishes.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "editorial-test.db")

	db, err := store.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return db
}

// ItemOption customizes an item created by InsertItem.
type ItemOption func(*model.ContentItem)

// WithStatus sets the item's status and the stage that goes with it.
func WithStatus(s model.Status, stage model.Stage) ItemOption {
	return func(c *model.ContentItem) {
		c.Status = s
		c.WorkflowStage = stage
	}
}

// WithScheduled marks the item scheduled for at.
func WithScheduled(at time.Time) ItemOption {
	return func(c *model.ContentItem) {
		c.Status = model.StatusScheduled
		c.WorkflowStage = model.StageScheduling
		c.ScheduledPublishDate = &at
	}
}

// WithPublished marks the item published at at.
func WithPublished(at time.Time) ItemOption {
	return func(c *model.ContentItem) {
		c.Status = model.StatusPublished
		c.WorkflowStage = model.StagePublished
		c.PublishDate = &at
	}
}

// WithPromotion sets the item's promotion attributes.
func WithPromotion(p model.Promotion) ItemOption {
	return func(c *model.ContentItem) {
		c.Promotion = p
	}
}

// WithKind sets the item's kind.
func WithKind(k model.Kind) ItemOption {
	return func(c *model.ContentItem) {
		c.Kind = k
	}
}

// InsertItem writes a draft article (adjusted by opts) directly to db.
func InsertItem(t *testing.T, db store.DBTX, opts ...ItemOption) model.ContentItem {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC()
	item := model.ContentItem{
		ID:            id,
		Kind:          model.KindArticle,
		Title:         "Item " + id[:8],
		Slug:          "item-" + id[:8],
		AuthorID:      "author-1",
		Status:        model.StatusDraft,
		WorkflowStage: model.StageCreation,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, opt := range opts {
		opt(&item)
	}

	if err := store.New(db).CreateContent(context.Background(), item); err != nil {
		t.Fatalf("CreateContent: %v", err)
	}
	return item
}
