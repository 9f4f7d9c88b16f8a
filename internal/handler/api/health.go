// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds the database ping.
const healthTimeout = 2 * time.Second

// HealthStatus is the /health response.
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Latency  string `json:"latency,omitempty"`
}

// Health handles GET /health. It pings the database and answers 503 when
// the ping fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := HealthStatus{Status: "healthy", Version: h.version.Version, Database: "ok"}
	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		status.Status = "unhealthy"
		status.Database = "unreachable"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status.Latency = time.Since(start).String()
	WriteJSON(w, http.StatusOK, status)
}
