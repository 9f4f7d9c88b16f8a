// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the REST API for the editorial engine.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/olegiv/ocms-editorial/internal/middleware"
	"github.com/olegiv/ocms-editorial/internal/promotion"
	"github.com/olegiv/ocms-editorial/internal/scheduler"
	"github.com/olegiv/ocms-editorial/internal/service"
	"github.com/olegiv/ocms-editorial/internal/version"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	db         *sql.DB
	editorial  *service.EditorialService
	promotions *promotion.Engine
	executor   *scheduler.Executor
	events     *service.EventService
	version    version.Info
	logger     *slog.Logger
}

// Deps lists the collaborators of the API.
type Deps struct {
	DB         *sql.DB
	Editorial  *service.EditorialService
	Promotions *promotion.Engine
	// Executor is optional; scheduler routes answer 503 without it.
	Executor *scheduler.Executor
	Events   *service.EventService
	Version  version.Info
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		db:         deps.DB,
		editorial:  deps.Editorial,
		promotions: deps.Promotions,
		executor:   deps.Executor,
		events:     deps.Events,
		version:    deps.Version,
		logger:     logger,
	}
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination and other metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]any) {
	middleware.WriteAPIError(w, statusCode, code, message, details)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, nil)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// statusForCode maps workflow error codes to HTTP statuses.
var statusForCode = map[workflow.Code]int{
	workflow.CodeIllegalTransition: http.StatusUnprocessableEntity,
	workflow.CodePermissionDenied:  http.StatusForbidden,
	workflow.CodeConcurrencyLost:   http.StatusConflict,
	workflow.CodeNotFound:          http.StatusNotFound,
	workflow.CodeStorageTransient:  http.StatusServiceUnavailable,
	workflow.CodeHistoryWrite:      http.StatusInternalServerError,
	workflow.CodeInvalidInput:      http.StatusBadRequest,
}

// writeServiceError translates a service error into the error envelope.
// Errors outside the workflow taxonomy become a 500 without leaking details.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		h.logger.Error("unexpected API error", "path", r.URL.Path, "error", err)
		WriteInternalError(w, "Internal server error")
		return
	}

	status, ok := statusForCode[werr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("API request failed", "path", r.URL.Path, "code", werr.Code, "error", err)
	}

	var details map[string]any
	if werr.Retryable() {
		details = map[string]any{"retryable": true}
	}
	WriteError(w, status, string(werr.Code), workflow.ReasonOf(err), details)
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are rejected.
// It writes a 400 and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		WriteBadRequest(w, msg)
		return false
	}
	return true
}

// actorFrom returns the request's actor. Routes that need one are wrapped in
// middleware.RequireActor, so a missing actor yields the zero value and the
// service rejects it.
func actorFrom(r *http.Request) workflow.Actor {
	actor, _ := middleware.GetActor(r)
	return actor
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// StatusResponse contains API status information.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Status returns the API status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, StatusResponse{Status: "ok", Version: "v1"}, nil)
}
