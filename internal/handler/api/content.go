// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// CreateContent handles POST /api/v1/content.
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var in service.NewContent
	if !decodeJSON(w, r, &in) {
		return
	}

	item, err := h.editorial.CreateDraft(r.Context(), in, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := model.Wrap(item)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteCreated(w, p)
}

// ContentMeta accompanies a single content item.
type ContentMeta struct {
	// AllowedTransitions lists the statuses the requesting actor may move the
	// item to next.
	AllowedTransitions []model.Status `json:"allowed_transitions"`
}

// ContentResponse is the body of GET /api/v1/content/{id}.
type ContentResponse struct {
	Data model.Publishable `json:"data"`
	Meta ContentMeta       `json:"meta"`
}

// GetContent handles GET /api/v1/content/{id}.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	p, err := h.editorial.Content(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	allowed := workflow.AllowedTargets(p.Item().Status, actorFrom(r).Capabilities)
	if allowed == nil {
		allowed = []model.Status{}
	}
	WriteJSON(w, http.StatusOK, ContentResponse{Data: p, Meta: ContentMeta{AllowedTransitions: allowed}})
}

// TransitionInput is the body of a transition request.
type TransitionInput struct {
	TargetStatus         model.Status   `json:"target_status"`
	ScheduledPublishDate *time.Time     `json:"scheduled_publish_date,omitempty"`
	Notes                string         `json:"notes,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// TransitionContent handles POST /api/v1/content/{id}/transitions.
func (h *Handler) TransitionContent(w http.ResponseWriter, r *http.Request) {
	var in TransitionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.TargetStatus.Valid() {
		WriteBadRequest(w, "Unknown target status")
		return
	}

	res, err := h.editorial.Transition(r.Context(), service.TransitionRequest{
		ContentID:            chi.URLParam(r, "id"),
		Target:               in.TargetStatus,
		Actor:                actorFrom(r),
		ScheduledPublishDate: in.ScheduledPublishDate,
		Notes:                in.Notes,
		Metadata:             in.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, res, nil)
}

// StageInput is the body of a stage change.
type StageInput struct {
	Stage model.Stage `json:"stage"`
}

// AdvanceStage handles POST /api/v1/content/{id}/stage.
func (h *Handler) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	var in StageInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.Stage.Valid() {
		WriteBadRequest(w, "Unknown workflow stage")
		return
	}

	item, err := h.editorial.AdvanceStage(r.Context(), chi.URLParam(r, "id"), in.Stage, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, item, nil)
}

// PromotionInput is the body of a promotion change. ExpectedVersion must
// match the item's current version.
type PromotionInput struct {
	service.PromotionPatch
	ExpectedVersion int64 `json:"expected_version"`
}

// UpdatePromotion handles PATCH /api/v1/content/{id}/promotion.
func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	var in PromotionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.ExpectedVersion <= 0 {
		WriteBadRequest(w, "expected_version is required")
		return
	}

	item, err := h.editorial.UpdatePromotion(r.Context(), chi.URLParam(r, "id"), in.PromotionPatch, in.ExpectedVersion, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, item, nil)
}

// ContentHistory handles GET /api/v1/content/{id}/history.
func (h *Handler) ContentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.editorial.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.WorkflowHistoryEntry{}
	}
	WriteSuccess(w, entries, &Meta{Total: len(entries)})
}

// VerifyHistory handles GET /api/v1/content/{id}/history/verify.
func (h *Handler) VerifyHistory(w http.ResponseWriter, r *http.Request) {
	v, err := h.editorial.VerifyHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, v, nil)
}
