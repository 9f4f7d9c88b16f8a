// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
)

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in service.NewCampaign
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.editorial.CreateCampaign(r.Context(), in, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteCreated(w, c)
}

// ListCampaigns handles GET /api/v1/campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultCampaignPageSize, 1, service.MaxCampaignPageSize)
	if err != nil {
		WriteBadRequest(w, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		WriteBadRequest(w, "Invalid offset")
		return
	}

	campaigns, err := h.editorial.ListCampaigns(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	WriteSuccess(w, campaigns, &Meta{Total: len(campaigns), Limit: limit, Offset: offset})
}

// GetCampaign handles GET /api/v1/campaigns/{id}.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.editorial.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, c, nil)
}
