// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/scheduler"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// SchedulerResponse describes the executor and its jobs.
type SchedulerResponse struct {
	Executor scheduler.Status    `json:"executor"`
	Jobs     []scheduler.JobInfo `json:"jobs"`
}

func (h *Handler) requireExecutor(w http.ResponseWriter) bool {
	if h.executor == nil {
		WriteError(w, http.StatusServiceUnavailable, "scheduler_disabled", "Scheduler is not running in this process", nil)
		return false
	}
	return true
}

func (h *Handler) schedulerSnapshot() SchedulerResponse {
	jobs := h.executor.Registry().List()
	if jobs == nil {
		jobs = []scheduler.JobInfo{}
	}
	return SchedulerResponse{Executor: h.executor.Status(), Jobs: jobs}
}

// ListSchedulerJobs handles GET /api/v1/scheduler/jobs.
func (h *Handler) ListSchedulerJobs(w http.ResponseWriter, _ *http.Request) {
	if !h.requireExecutor(w) {
		return
	}
	WriteSuccess(w, h.schedulerSnapshot(), nil)
}

// ScheduleInput is the body of PUT .../schedule.
type ScheduleInput struct {
	Schedule string `json:"schedule"`
}

// RescheduleJob handles PUT /api/v1/scheduler/jobs/{source}/{name}/schedule.
func (h *Handler) RescheduleJob(w http.ResponseWriter, r *http.Request) {
	if !h.requireExecutor(w) {
		return
	}
	var in ScheduleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	source := chi.URLParam(r, "source")
	name := chi.URLParam(r, "name")

	err := h.executor.Registry().Reschedule(r.Context(), source, name, strings.TrimSpace(in.Schedule))
	if h.writeRegistryError(w, r, err) {
		return
	}
	h.logScheduleChange(r, source, name, "Scheduler job rescheduled", in.Schedule)
	WriteSuccess(w, h.schedulerSnapshot(), nil)
}

// ResetJobSchedule handles DELETE /api/v1/scheduler/jobs/{source}/{name}/schedule.
func (h *Handler) ResetJobSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireExecutor(w) {
		return
	}
	source := chi.URLParam(r, "source")
	name := chi.URLParam(r, "name")

	err := h.executor.Registry().ResetSchedule(r.Context(), source, name)
	if h.writeRegistryError(w, r, err) {
		return
	}
	h.logScheduleChange(r, source, name, "Scheduler job schedule reset", "")
	WriteSuccess(w, h.schedulerSnapshot(), nil)
}

// writeRegistryError writes the response for a failed schedule change and
// reports whether it did.
func (h *Handler) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, scheduler.ErrJobNotFound):
		WriteNotFound(w, "Job not found")
	case errors.Is(err, scheduler.ErrInvalidSchedule):
		WriteError(w, http.StatusBadRequest, "invalid_schedule", err.Error(), nil)
	default:
		h.logger.Error("schedule change failed", "path", r.URL.Path, "error", err)
		WriteInternalError(w, "Schedule change failed")
	}
	return true
}

func (h *Handler) logScheduleChange(r *http.Request, source, name, message, schedule string) {
	actor := actorFrom(r)
	h.logger.Info("scheduler job schedule changed", "source", source, "name", name, "schedule", schedule, "actor", actor.ID)
	if h.events == nil {
		return
	}
	meta := map[string]any{"source": source, "name": name, "actor": actor.ID}
	if schedule != "" {
		meta["schedule"] = schedule
	}
	_ = h.events.LogInfo(r.Context(), model.EventCategoryScheduler, message, meta)
}

// TriggerSchedulerJob handles POST /api/v1/scheduler/jobs/{source}/{name}/trigger.
// The job runs synchronously; the response carries the executor state after it.
func (h *Handler) TriggerSchedulerJob(w http.ResponseWriter, r *http.Request) {
	if !h.requireExecutor(w) {
		return
	}
	source := chi.URLParam(r, "source")
	name := chi.URLParam(r, "name")

	err := h.executor.Registry().TriggerNow(source, name)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrJobNotFound):
		WriteNotFound(w, "Job not found")
		return
	case errors.Is(err, scheduler.ErrTriggerNotAllowed):
		WriteError(w, http.StatusConflict, "trigger_not_allowed", "Job cannot be triggered manually", nil)
		return
	case errors.Is(err, scheduler.ErrTriggerRateLimit):
		w.Header().Set("Retry-After", strconv.Itoa(int(scheduler.TriggerInterval.Seconds())))
		WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Job was triggered recently", nil)
		return
	case workflow.CodeOf(err) != "":
		h.writeServiceError(w, r, err)
		return
	default:
		h.logger.Error("manual job trigger failed", "source", source, "name", name, "error", err)
		WriteInternalError(w, "Job failed")
		return
	}

	actor := actorFrom(r)
	h.logger.Info("scheduler job triggered", "source", source, "name", name, "actor", actor.ID)
	if h.events != nil {
		_ = h.events.LogInfo(r.Context(), model.EventCategoryScheduler, "Scheduler job triggered manually", map[string]any{
			"source": source,
			"name":   name,
			"actor":  actor.ID,
		})
	}
	WriteSuccess(w, h.schedulerSnapshot(), nil)
}
