// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/ocms-editorial/internal/middleware"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	// APIToken protects /api/v1 when set.
	APIToken       string
	RequestTimeout time.Duration
	IsDevelopment  bool
	// RateLimit is requests per second per actor; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Router builds the chi router serving /health and /api/v1.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerToken(cfg.APIToken))
		r.Use(middleware.ActorFromHeaders)
		if cfg.RateLimit > 0 {
			r.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())
		}

		r.Get("/", h.Status)

		r.Get("/promotions", h.ListPromotions)
		r.Get("/promotions/{slot}", h.GetPromotionSlot)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireActor)

			r.Post("/content", h.CreateContent)
			r.Get("/content/{id}", h.GetContent)
			r.Post("/content/{id}/transitions", h.TransitionContent)
			r.Post("/content/{id}/stage", h.AdvanceStage)
			r.Patch("/content/{id}/promotion", h.UpdatePromotion)
			r.Get("/content/{id}/history", h.ContentHistory)
			r.Get("/content/{id}/history/verify", h.VerifyHistory)

			r.Post("/campaigns", h.CreateCampaign)
			r.Get("/campaigns", h.ListCampaigns)
			r.Get("/campaigns/{id}", h.GetCampaign)

			r.Get("/scheduler/jobs", h.ListSchedulerJobs)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(workflow.CapPublish))
				r.Post("/scheduler/jobs/{source}/{name}/trigger", h.TriggerSchedulerJob)
				r.Put("/scheduler/jobs/{source}/{name}/schedule", h.RescheduleJob)
				r.Delete("/scheduler/jobs/{source}/{name}/schedule", h.ResetJobSchedule)
			})

			if h.events != nil {
				r.Get("/events", h.ListEvents)
			}
		})
	})

	return r
}
