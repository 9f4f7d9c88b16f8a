// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
)

// ListEvents handles GET /api/v1/events?level=&category=&limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	if level != "" && !model.ValidEventLevel(level) {
		WriteBadRequest(w, "Unknown event level")
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultEventLimit, 1, service.MaxEventLimit)
	if err != nil {
		WriteBadRequest(w, "Invalid limit")
		return
	}

	events, err := h.events.List(r.Context(), level, r.URL.Query().Get("category"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	WriteSuccess(w, events, &Meta{Total: len(events), Limit: limit})
}
