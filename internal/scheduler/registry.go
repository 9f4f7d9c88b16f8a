// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// Registry errors
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already registered")
	ErrTriggerNotAllowed = errors.New("manual trigger not available")
	ErrTriggerRateLimit  = errors.New("manual trigger rate limited")
	ErrInvalidSchedule   = errors.New("invalid schedule")
)

// TriggerInterval is the minimum spacing between manual triggers of one job.
const TriggerInterval = 10 * time.Second

const overrideTimeout = 5 * time.Second

// scheduleParser accepts standard five-field expressions and descriptors
// such as @every 1m.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a schedule the registry accepts.
func ValidateSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// Job describes a recurring job. Run serves both the cron entry and manual
// triggers; it receives the context the job was added with.
type Job struct {
	Source          string
	Name            string
	Description     string
	DefaultSchedule string
	// Manual allows TriggerNow.
	Manual bool
	Run    func(ctx context.Context) error
}

func (j Job) key() string { return j.Source + ":" + j.Name }

type registeredJob struct {
	job      Job
	ctx      context.Context
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string // effective schedule (override or default)
	limiter  *rate.Limiter

	// guarded by Registry.mu
	runs       int64
	lastFinish *time.Time
	lastErr    string
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Source          string     `json:"source"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	DefaultSchedule string     `json:"default_schedule"`
	Schedule        string     `json:"schedule"`
	IsOverridden    bool       `json:"is_overridden"`
	CanTrigger      bool       `json:"can_trigger"`
	LastRun         time.Time  `json:"last_run"`
	NextRun         time.Time  `json:"next_run"`
	Runs            int64      `json:"runs"`
	LastFinishedAt  *time.Time `json:"last_finished_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Registry tracks the recurring jobs of the process. Schedule overrides are
// persisted in scheduler_overrides and win over a job's default on Add.
type Registry struct {
	queries *store.Queries
	clock   clock.Clock
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]*registeredJob
}

// NewRegistry creates an empty registry.
func NewRegistry(db store.DBTX, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		queries: store.New(db),
		clock:   clk,
		logger:  logger,
		jobs:    make(map[string]*registeredJob),
	}
}

// effectiveSchedule returns the stored override when it parses, otherwise
// def. Lookup failures fall back to def.
func (r *Registry) effectiveSchedule(ctx context.Context, source, name, def string) string {
	ctx, cancel := context.WithTimeout(ctx, overrideTimeout)
	defer cancel()

	override, err := r.queries.GetSchedulerOverride(ctx, source, name)
	switch {
	case err != nil && !store.IsNotFound(err):
		r.logger.Warn("reading schedule override failed", "source", source, "name", name, "error", err)
	case err == nil && override != "":
		if ValidateSchedule(override) == nil {
			return override
		}
		r.logger.Warn("ignoring invalid schedule override", "source", source, "name", name, "schedule", override)
	}
	return def
}

// Add schedules job on c under its effective schedule. Scheduled and manual
// runs use ctx, so cancelling it stops in-flight work.
func (r *Registry) Add(ctx context.Context, c *cron.Cron, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.key())
	}
	if err := ValidateSchedule(job.DefaultSchedule); err != nil {
		return fmt.Errorf("job %s: %w", job.key(), err)
	}
	schedule := r.effectiveSchedule(ctx, job.Source, job.Name, job.DefaultSchedule)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.key()]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.key())
	}
	rj := &registeredJob{
		job:      job,
		ctx:      ctx,
		cron:     c,
		schedule: schedule,
		limiter:  rate.NewLimiter(rate.Every(TriggerInterval), 1),
	}
	id, err := c.AddFunc(schedule, r.scheduled(rj))
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.key(), err)
	}
	rj.entryID = id
	r.jobs[job.key()] = rj

	r.logger.Debug("registered scheduled job", "source", job.Source, "name", job.Name, "schedule", schedule)
	return nil
}

func (r *Registry) scheduled(rj *registeredJob) func() {
	return func() {
		if err := r.run(rj); err != nil {
			r.logger.Error("scheduled job failed",
				"category", model.EventCategoryScheduler,
				"source", rj.job.Source,
				"name", rj.job.Name,
				"error", err)
		}
	}
}

// run executes the job and records its outcome.
func (r *Registry) run(rj *registeredJob) error {
	err := rj.job.Run(rj.ctx)
	finished := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	rj.runs++
	rj.lastFinish = &finished
	rj.lastErr = ""
	if err != nil {
		rj.lastErr = err.Error()
	}
	return err
}

func (r *Registry) lookup(source, name string) (*registeredJob, error) {
	rj, ok := r.jobs[source+":"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrJobNotFound, source, name)
	}
	return rj, nil
}

// List returns all jobs sorted by source then name.
func (r *Registry) List() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]JobInfo, 0, len(r.jobs))
	for _, rj := range r.jobs {
		info := JobInfo{
			Source:          rj.job.Source,
			Name:            rj.job.Name,
			Description:     rj.job.Description,
			DefaultSchedule: rj.job.DefaultSchedule,
			Schedule:        rj.schedule,
			IsOverridden:    rj.schedule != rj.job.DefaultSchedule,
			CanTrigger:      rj.job.Manual,
			Runs:            rj.runs,
			LastFinishedAt:  rj.lastFinish,
			LastError:       rj.lastErr,
		}
		entry := rj.cron.Entry(rj.entryID)
		info.NextRun = entry.Next
		info.LastRun = entry.Prev
		out = append(out, info)
	}

	slices.SortFunc(out, func(a, b JobInfo) int {
		if c := strings.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// TriggerNow runs a job synchronously. Each job accepts one manual trigger
// per TriggerInterval.
func (r *Registry) TriggerNow(source, name string) error {
	r.mu.Lock()
	rj, err := r.lookup(source, name)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if !rj.job.Manual {
		return fmt.Errorf("%w: %s", ErrTriggerNotAllowed, rj.job.key())
	}
	if !rj.limiter.AllowN(r.clock.Now(), 1) {
		return fmt.Errorf("%w: %s", ErrTriggerRateLimit, rj.job.key())
	}

	r.logger.Info("manually triggering job", "source", source, "name", name)
	return r.run(rj)
}

// Reschedule persists schedule as the job's override and moves its cron
// entry. The stored override is written first so a restart never reverts
// to a schedule the caller replaced.
func (r *Registry) Reschedule(ctx context.Context, source, name, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rj, err := r.lookup(source, name)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, overrideTimeout)
	defer cancel()
	if err := r.queries.UpsertSchedulerOverride(pctx, source, name, schedule, r.clock.Now()); err != nil {
		return fmt.Errorf("persist schedule override: %w", err)
	}

	if err := r.moveLocked(rj, schedule); err != nil {
		return err
	}
	r.logger.Info("updated job schedule", "source", source, "name", name, "schedule", schedule)
	return nil
}

// ResetSchedule drops the override and restores the default schedule.
func (r *Registry) ResetSchedule(ctx context.Context, source, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rj, err := r.lookup(source, name)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, overrideTimeout)
	defer cancel()
	if err := r.queries.DeleteSchedulerOverride(dctx, source, name); err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("delete schedule override: %w", err)
	}

	if rj.schedule == rj.job.DefaultSchedule {
		return nil
	}
	if err := r.moveLocked(rj, rj.job.DefaultSchedule); err != nil {
		return err
	}
	r.logger.Info("reset job schedule to default", "source", source, "name", name, "schedule", rj.schedule)
	return nil
}

// moveLocked replaces the job's cron entry. On failure the old entry is
// restored.
func (r *Registry) moveLocked(rj *registeredJob, schedule string) error {
	rj.cron.Remove(rj.entryID)
	id, err := rj.cron.AddFunc(schedule, r.scheduled(rj))
	if err != nil {
		oldID, restoreErr := rj.cron.AddFunc(rj.schedule, r.scheduled(rj))
		if restoreErr != nil {
			return fmt.Errorf("restore schedule of %s: %w (original: %w)", rj.job.key(), restoreErr, err)
		}
		rj.entryID = oldID
		return fmt.Errorf("apply schedule to %s: %w", rj.job.key(), err)
	}
	rj.entryID = id
	rj.schedule = schedule
	return nil
}
