// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/promotion"
)

// slotOptions parses the slot filters from the query string.
func slotOptions(r *http.Request) (promotion.Options, string) {
	q := r.URL.Query()
	var opts promotion.Options

	limit, err := queryInt(r, "limit", 0, 1, promotion.MaxLimit)
	if err != nil {
		return opts, "limit must be between 1 and " + strconv.Itoa(promotion.MaxLimit)
	}
	opts.Limit = limit

	if kind := q.Get("kind"); kind != "" {
		opts.Kind = model.Kind(kind)
		if !opts.Kind.Valid() {
			return opts, "Unknown content kind"
		}
	}
	if raw := q.Get("homepage"); raw != "" {
		homepage, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, "homepage must be a boolean"
		}
		opts.HomepageOnly = homepage
	}
	opts.Category = strings.TrimSpace(q.Get("category"))
	opts.CampaignID = strings.TrimSpace(q.Get("campaign"))
	return opts, ""
}

// ListPromotions handles GET /api/v1/promotions.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	opts, problem := slotOptions(r)
	if problem != "" {
		WriteBadRequest(w, problem)
		return
	}

	slots, err := h.promotions.All(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make(map[promotion.Slot][]promotion.Item, len(slots))
	for slot, items := range slots {
		if items == nil {
			items = []promotion.Item{}
		}
		out[slot] = items
	}
	WriteSuccess(w, out, nil)
}

// GetPromotionSlot handles GET /api/v1/promotions/{slot}.
func (h *Handler) GetPromotionSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := promotion.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		WriteNotFound(w, "Promotion slot not found")
		return
	}
	opts, problem := slotOptions(r)
	if problem != "" {
		WriteBadRequest(w, problem)
		return
	}

	items, err := h.promotions.Slot(r.Context(), slot, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []promotion.Item{}
	}
	WriteSuccess(w, items, &Meta{Total: len(items), Limit: h.promotions.Limit(slot, opts.Limit)})
}
