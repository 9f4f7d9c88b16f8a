// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides the editorial unit of work: every accepted
// transition is one transaction holding both the state write and its
// history entry.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/history"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/util"
	"github.com/olegiv/ocms-editorial/internal/webhook"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// Limits on editor-supplied fields.
const (
	MaxTitleLength = 255
	MaxBoostLevel  = 100
	maxSlugTries   = 100
)

// Notifier delivers outbound events. *webhook.Dispatcher satisfies it.
type Notifier interface {
	DispatchEvent(ctx context.Context, eventType string, data any) error
}

// SlotInvalidator drops cached promotion slots. *promotion.Engine satisfies it.
type SlotInvalidator interface {
	Invalidate(ctx context.Context)
}

// Options wires optional collaborators into the service.
type Options struct {
	// StorageTimeout bounds each unit of work. Zero means no extra bound.
	StorageTimeout time.Duration
	Slots          SlotInvalidator
	Notifier       Notifier
}

// EditorialService runs editor-initiated operations on content items.
type EditorialService struct {
	db       *sql.DB
	queries  *store.Queries
	recorder *history.Recorder
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options
}

// NewEditorialService creates an EditorialService.
func NewEditorialService(db *sql.DB, clk clock.Clock, logger *slog.Logger, opts Options) *EditorialService {
	return &EditorialService{
		db:       db,
		queries:  store.New(db),
		recorder: history.NewRecorder(),
		clock:    clk,
		logger:   logger,
		opts:     opts,
	}
}

func (s *EditorialService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StorageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StorageTimeout)
}

// NewContent is the input to CreateDraft.
type NewContent struct {
	Kind  model.Kind `json:"kind"`
	Title string     `json:"title"`
	// Slug is optional; it is derived from Title when empty. A supplied slug
	// must already be in canonical form.
	Slug string `json:"slug,omitempty"`
	// Details holds the fields specific to Kind, e.g. video_url for a
	// video_article.
	Details json.RawMessage `json:"details,omitempty"`
}

// CreateDraft creates a draft item owned by actor. A numeric suffix is added
// to the slug when the kind already uses it.
func (s *EditorialService) CreateDraft(ctx context.Context, in NewContent, actor workflow.Actor) (model.ContentItem, error) {
	if err := requireActor(actor, workflow.CapAuthor); err != nil {
		return model.ContentItem{}, err
	}

	kind := in.Kind
	if kind == "" {
		kind = model.KindArticle
	}
	if !kind.Valid() {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "unknown content kind %q", in.Kind)
	}

	title := strings.TrimSpace(util.SanitizeText(in.Title))
	if title == "" {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "title exceeds %d characters", MaxTitleLength)
	}

	base := in.Slug
	switch {
	case base == "":
		base = util.Slugify(title)
		if base == "" {
			return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "title does not produce a usable slug")
		}
	case !util.IsValidSlug(base):
		return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput,
			"slug %q must be lowercase letters, digits and single hyphens, at most %d bytes", base, util.MaxSlugLength)
	}

	details, err := model.NormalizeDetails(kind, in.Details)
	if err != nil {
		return model.ContentItem{}, workflow.Errorf(workflow.CodeInvalidInput, "%v", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slug, err := s.uniqueSlug(ctx, kind, base)
	if err != nil {
		return model.ContentItem{}, err
	}

	now := s.clock.Now().UTC()
	item := model.ContentItem{
		ID:            uuid.NewString(),
		Kind:          kind,
		Title:         title,
		Slug:          slug,
		AuthorID:      actor.ID,
		Status:        model.StatusDraft,
		WorkflowStage: model.StageCreation,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Details:       details,
	}
	if err := s.queries.CreateContent(ctx, item); err != nil {
		return model.ContentItem{}, fmt.Errorf("create draft: %w", err)
	}

	s.logger.Info("draft created", "content_id", item.ID, "kind", item.Kind, "slug", item.Slug, "author", actor.ID)
	return item, nil
}

func (s *EditorialService) uniqueSlug(ctx context.Context, kind model.Kind, base string) (string, error) {
	slug := base
	for counter := 2; counter <= maxSlugTries+1; counter++ {
		exists, err := s.queries.SlugExists(ctx, kind, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = util.SlugWithSuffix(base, counter)
	}
	return "", workflow.Errorf(workflow.CodeConcurrencyLost, "no free slug for %q", base)
}

// Get returns a content item.
func (s *EditorialService) Get(ctx context.Context, id string) (model.ContentItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.queries.GetContent(ctx, id)
}

// Content returns an item as its concrete type, kind-specific fields included.
func (s *EditorialService) Content(ctx context.Context, id string) (model.Publishable, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.Wrap(item)
}

// CountByStatus returns the number of items in each status. Statuses with no
// items are absent.
func (s *EditorialService) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.queries.CountByStatus(ctx)
}

// TransitionRequest asks for a status change of one item.
type TransitionRequest struct {
	ContentID            string
	Target               model.Status
	Actor                workflow.Actor
	ScheduledPublishDate *time.Time
	Notes                string
	Metadata             map[string]any
}

// TransitionResult is the committed outcome of a transition.
type TransitionResult struct {
	Item  model.ContentItem          `json:"item"`
	Entry model.WorkflowHistoryEntry `json:"history_entry"`
}

// Transition validates and applies a status change. The state write and the
// history entry commit together or not at all. A concurrent change to the
// same item yields workflow.ErrConcurrencyLost; the caller may re-read and
// retry.
func (s *EditorialService) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	if strings.TrimSpace(req.Actor.ID) == "" {
		return TransitionResult{}, workflow.Errorf(workflow.CodePermissionDenied, "actor id is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock.Now().UTC()
	var res TransitionResult

	err := store.InTx(ctx, s.db, func(q *store.Queries) error {
		item, err := q.GetContent(ctx, req.ContentID)
		if err != nil {
			return err
		}

		d, err := workflow.Decide(workflow.StateOf(&item), workflow.Request{
			Target:               req.Target,
			Actor:                req.Actor,
			ScheduledPublishDate: req.ScheduledPublishDate,
			Notes:                req.Notes,
		}, now)
		if err != nil {
			return err
		}

		n, err := q.UpdateWorkflowState(ctx, store.UpdateWorkflowStateParams{
			ID:                   item.ID,
			ExpectedStatus:       item.Status,
			ExpectedStage:        item.WorkflowStage,
			Status:               d.To,
			Stage:                d.Stage,
			ScheduledPublishDate: d.ScheduledPublishDate,
			PublishDate:          d.PublishDate,
			UpdatedAt:            now,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return workflow.Errorf(workflow.CodeConcurrencyLost, "content item %s was changed concurrently", item.ID)
		}

		d.Apply(&item)
		item.Version++
		item.UpdatedAt = now

		entry := history.NewEntry(history.Entry{
			ContentID: item.ID,
			From:      d.From,
			To:        d.To,
			ChangedBy: req.Actor.ID,
			Notes:     req.Notes,
			Metadata:  transitionMetadata(req.Metadata, d),
			Timestamp: now,
		})
		if err := s.recorder.Record(ctx, q.DB(), entry); err != nil {
			if err = store.Classify(err); workflow.CodeOf(err) != "" {
				return err
			}
			return workflow.Wrap(workflow.CodeHistoryWrite, "history entry not recorded", err)
		}

		res = TransitionResult{Item: item, Entry: *entry}
		return nil
	})
	if err != nil {
		s.logger.Debug("transition rejected",
			"content_id", req.ContentID,
			"to", req.Target,
			"actor", req.Actor.ID,
			"error", err)
		return TransitionResult{}, err
	}

	s.logger.Info("content transitioned",
		"content_id", res.Item.ID,
		"from", res.Entry.FromStatus,
		"to", res.Entry.ToStatus,
		"stage", res.Item.WorkflowStage,
		"changed_by", req.Actor.ID)

	s.afterTransition(ctx, res.Item, res.Entry.FromStatus, req.Actor.ID)
	return res, nil
}

func transitionMetadata(extra map[string]any, d workflow.Decision) map[string]any {
	md := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		md[k] = v
	}
	md["workflow_stage"] = string(d.Stage)
	md["trigger"] = "editor"
	if d.ScheduledPublishDate != nil {
		md["scheduled_for"] = d.ScheduledPublishDate.UTC().Format(time.RFC3339Nano)
	}
	return md
}

// afterTransition runs the post-commit side effects. Failures are logged only.
func (s *EditorialService) afterTransition(ctx context.Context, item model.ContentItem, from model.Status, changedBy string) {
	ctx = context.WithoutCancel(ctx)

	if s.opts.Slots != nil {
		s.opts.Slots.Invalidate(ctx)
	}
	if s.opts.Notifier == nil {
		return
	}

	data := webhook.ContentEvent(item, from, changedBy)
	if err := s.opts.Notifier.DispatchEvent(ctx, webhook.EventContentTransitioned, data); err != nil {
		s.logger.Warn("failed to dispatch transition event", "content_id", item.ID, "error", err)
	}
	if item.Status == model.StatusPublished {
		if err := s.opts.Notifier.DispatchEvent(ctx, webhook.EventContentPublished, data); err != nil {
			s.logger.Warn("failed to dispatch publish event", "content_id", item.ID, "error", err)
		}
	}
}

// AdvanceStage moves an in_review item to a later review stage. The status
// is unchanged, so no history entry is written.
func (s *EditorialService) AdvanceStage(ctx context.Context, id string, stage model.Stage, actor workflow.Actor) (model.ContentItem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.clock.Now().UTC()
	var out model.ContentItem

	err := store.InTx(ctx, s.db, func(q *store.Queries) error {
		item, err := q.GetContent(ctx, id)
		if err != nil {
			return err
		}
		d, err := workflow.AdvanceStage(workflow.StateOf(&item), stage, actor)
		if err != nil {
			return err
		}
		n, err := q.UpdateWorkflowState(ctx, store.UpdateWorkflowStateParams{
			ID:                   item.ID,
			ExpectedStatus:       item.Status,
			ExpectedStage:        item.WorkflowStage,
			Status:               d.To,
			Stage:                d.Stage,
			ScheduledPublishDate: d.ScheduledPublishDate,
			PublishDate:          d.PublishDate,
			UpdatedAt:            now,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return workflow.Errorf(workflow.CodeConcurrencyLost, "content item %s was changed concurrently", item.ID)
		}
		d.Apply(&item)
		item.Version++
		item.UpdatedAt = now
		out = item
		return nil
	})
	if err != nil {
		return model.ContentItem{}, err
	}

	s.logger.Info("workflow stage advanced", "content_id", id, "stage", stage, "actor", actor.ID)
	return out, nil
}

// History returns the audit trail of an item ordered by (timestamp, seq).
func (s *EditorialService) History(ctx context.Context, id string) ([]model.WorkflowHistoryEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.queries.GetContent(ctx, id); err != nil {
		return nil, err
	}
	return s.recorder.List(ctx, s.db, id)
}

// Verification is the result of replaying an item's history.
type Verification struct {
	ContentID string                       `json:"content_id"`
	Status    model.Status                 `json:"status"`
	Entries   []model.WorkflowHistoryEntry `json:"entries"`
	Valid     bool                         `json:"valid"`
	Problem   *history.InconsistencyError  `json:"problem,omitempty"`
}

// VerifyHistory replays an item's history against the transition graph and
// its current status. An inconsistent trail is reported in the result, not
// as an error.
func (s *EditorialService) VerifyHistory(ctx context.Context, id string) (Verification, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := s.queries.GetContent(ctx, id)
	if err != nil {
		return Verification{}, err
	}
	entries, err := s.recorder.List(ctx, s.db, id)
	if err != nil {
		return Verification{}, err
	}

	v := Verification{ContentID: id, Status: item.Status, Entries: entries, Valid: true}
	if err := history.Verify(id, entries, item.Status); err != nil {
		var inc *history.InconsistencyError
		if !errors.As(err, &inc) {
			return Verification{}, err
		}
		v.Valid = false
		v.Problem = inc
		s.logger.Warn("history inconsistency detected",
			"category", model.EventCategoryHistory,
			"content_id", id,
			"index", inc.Index,
			"reason", inc.Reason)
	}
	return v, nil
}

func requireActor(actor workflow.Actor, capability workflow.Capability) error {
	if strings.TrimSpace(actor.ID) == "" {
		return workflow.Errorf(workflow.CodePermissionDenied, "actor id is required")
	}
	if !actor.Capabilities.Has(capability) {
		return workflow.Errorf(workflow.CodePermissionDenied, "requires the %s capability", capability)
	}
	return nil
}
