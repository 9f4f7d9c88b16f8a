// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler publishes scheduled content when its publish date
// arrives and keeps the registry of cron jobs run by the process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/history"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/webhook"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// Job identity in the registry.
const (
	JobSource         = "core"
	JobPublishDue     = "publish-due"
	JobEventRetention = "event-retention"
)

// State is the executor loop state.
type State string

// Executor states.
const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StatePublishing State = "publishing"
	StateStopped    State = "stopped"
)

// Config controls the executor.
type Config struct {
	// Interval between scans.
	Interval time.Duration
	// BatchSize caps the items published by one scan.
	BatchSize int
	// StorageTimeout bounds every storage call.
	StorageTimeout time.Duration
	// History is the retry budget for history appends.
	History history.RetryConfig
	// EventRetention is how long system events are kept. Zero keeps them forever.
	EventRetention time.Duration
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       60 * time.Second,
		BatchSize:      100,
		StorageTimeout: 5 * time.Second,
		History:        history.DefaultRetryConfig(),
		EventRetention: 30 * 24 * time.Hour,
	}
}

// Deps are the executor's collaborators. Only Clock is required.
type Deps struct {
	Clock    clock.Clock
	Locker   Locker
	Slots    service.SlotInvalidator
	Notifier service.Notifier
	Registry *Registry
	Events   *service.EventService
	// Recorder replaces the recorder built from Config.History.
	Recorder *history.RetryingRecorder
}

// RunResult summarizes one scan.
type RunResult struct {
	Due            int  `json:"due"`
	Published      int  `json:"published"`
	Skipped        int  `json:"skipped"`
	Failed         int  `json:"failed"`
	HistoryPending int  `json:"history_pending"`
	Standby        bool `json:"standby,omitempty"`
}

// Status is the executor view served by the status endpoint.
type Status struct {
	State          State      `json:"state"`
	Leader         bool       `json:"leader"`
	Interval       string     `json:"interval"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastResult     RunResult  `json:"last_result"`
	HistoryPending int        `json:"history_pending"`
}

// Executor scans for due scheduled items and publishes them. Several
// executors may run against the same store: each publish is a conditional
// update, so an item is published and recorded exactly once.
type Executor struct {
	queries  *store.Queries
	cfg      Config
	deps     Deps
	recorder *history.RetryingRecorder
	registry *Registry
	logger   *slog.Logger

	runMu  sync.Mutex
	leader atomic.Bool

	mu         sync.Mutex
	state      State
	lastRunAt  *time.Time
	lastResult RunResult
	pending    []*model.WorkflowHistoryEntry

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Executor on db.
func New(db store.DBTX, cfg Config, deps Deps, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = def.StorageTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Locker == nil {
		deps.Locker = NoopLocker{}
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(db, deps.Clock, logger)
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = history.NewRetryingRecorder(db, history.NewRecorder(), cfg.History, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		queries:  store.New(db),
		cfg:      cfg,
		deps:     deps,
		recorder: recorder,
		registry: deps.Registry,
		logger:   logger,
		state:    StateIdle,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the job registry the executor registers with.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Start schedules the publish scan and the event retention job.
func (e *Executor) Start() error {
	cronLogger := &slogCronLogger{logger: e.logger}
	e.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)

	err := e.registry.Add(e.ctx, e.cron, Job{
		Source:          JobSource,
		Name:            JobPublishDue,
		Description:     "Publish scheduled content that is due",
		DefaultSchedule: fmt.Sprintf("@every %s", e.cfg.Interval),
		Manual:          true,
		Run: func(ctx context.Context) error {
			_, err := e.RunOnce(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}

	if e.deps.Events != nil && e.cfg.EventRetention > 0 {
		err := e.registry.Add(e.ctx, e.cron, Job{
			Source:          JobSource,
			Name:            JobEventRetention,
			Description:     "Delete old system events",
			DefaultSchedule: "@daily",
			Manual:          true,
			Run: func(ctx context.Context) error {
				_, err := e.PurgeEvents(ctx)
				return err
			},
		})
		if err != nil {
			return err
		}
	}

	e.cron.Start()
	e.logger.Info("scheduler started", "interval", e.cfg.Interval, "batch_size", e.cfg.BatchSize, "jobs", len(e.cron.Entries()))
	return nil
}

// Stop stops scheduling, lets an in-flight item finish, flushes parked
// history entries and releases the leader lock.
func (e *Executor) Stop() {
	e.cancel()
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StorageTimeout)
	e.flushPending(ctx)
	cancel()

	if e.leader.Swap(false) {
		if err := e.deps.Locker.Unlock(); err != nil {
			e.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}

	e.setState(StateStopped)
	if n := e.PendingHistory(); n > 0 {
		e.logger.Error("scheduler stopped with unrecorded history entries",
			"category", model.EventCategoryHistory,
			"pending", n)
	}
	e.logger.Info("scheduler stopped")
}

// State returns the current loop state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.state = s
}

// Status returns a snapshot of the executor.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:          e.state,
		Interval:       e.cfg.Interval.String(),
		LastResult:     e.lastResult,
		HistoryPending: len(e.pending),
	}
	if e.lastRunAt != nil {
		at := *e.lastRunAt
		st.LastRunAt = &at
	}
	st.Leader = e.leader.Load()
	return st
}

// PendingHistory returns the number of parked history entries.
func (e *Executor) PendingHistory() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// RunOnce runs one scan synchronously. Per-item failures are logged and
// counted; the returned error is reserved for failures of the scan itself.
func (e *Executor) RunOnce(ctx context.Context) (RunResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}
	if e.State() == StateStopped {
		return RunResult{}, errors.New("scheduler is stopped")
	}

	if !e.leader.Load() {
		ok, err := e.deps.Locker.TryLock(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if !ok {
			e.logger.Debug("scheduler lock held elsewhere, standing by")
			return RunResult{Standby: true}, nil
		}
		e.leader.Store(true)
	}

	e.setState(StateScanning)
	defer e.setState(StateIdle)

	flushCtx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	e.flushPending(flushCtx)
	cancel()

	scanAt := e.deps.Clock.Now().UTC()
	listCtx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	due, err := e.queries.ListDueScheduled(listCtx, scanAt, e.cfg.BatchSize)
	cancel()
	if err != nil {
		return RunResult{}, fmt.Errorf("list due scheduled content: %w", err)
	}

	res := RunResult{Due: len(due)}
	if len(due) > 0 {
		e.setState(StatePublishing)
		e.logger.Info("publishing due content", "count", len(due))
	}

	for _, item := range due {
		if ctx.Err() != nil {
			break
		}
		published, err := e.publish(ctx, item)
		switch {
		case err != nil:
			res.Failed++
			e.logger.Error("failed to publish scheduled content",
				"category", model.EventCategoryScheduler,
				"content_id", item.ID,
				"error", err)
		case published:
			res.Published++
		default:
			res.Skipped++
		}
	}

	res.HistoryPending = e.PendingHistory()

	e.mu.Lock()
	e.lastRunAt = &scanAt
	e.lastResult = res
	e.mu.Unlock()

	return res, nil
}

// publish moves one item to published. It reports false without error when
// another writer changed the item first.
func (e *Executor) publish(ctx context.Context, item model.ContentItem) (bool, error) {
	now := e.deps.Clock.Now().UTC()
	if !item.IsDueAt(now) {
		e.logger.Debug("skipping content that is not due", "content_id", item.ID, "status", item.Status)
		return false, nil
	}
	d, err := workflow.PublishDue(workflow.StateOf(&item), now)
	if err != nil {
		return false, err
	}

	// Once started, an item runs to completion even if shutdown begins.
	opCtx := context.WithoutCancel(ctx)
	writeCtx, cancel := context.WithTimeout(opCtx, e.cfg.StorageTimeout)
	n, err := e.queries.PublishScheduled(writeCtx, store.PublishScheduledParams{
		ID:          item.ID,
		PublishDate: *d.PublishDate,
		Now:         now,
	})
	cancel()
	if err != nil {
		return false, err
	}
	if n == 0 {
		e.logger.Debug("scheduled content already handled", "content_id", item.ID)
		return false, nil
	}

	scheduledFor := item.ScheduledPublishDate
	d.Apply(&item)
	item.Version++
	item.UpdatedAt = now

	md := map[string]any{
		"published_at":   item.PublishDate.Format(time.RFC3339Nano),
		"trigger":        "scheduler",
		"workflow_stage": string(item.WorkflowStage),
	}
	if scheduledFor != nil {
		md["scheduled_for"] = scheduledFor.UTC().Format(time.RFC3339Nano)
	}

	entry := history.NewEntry(history.Entry{
		ContentID: item.ID,
		From:      d.From,
		To:        d.To,
		ChangedBy: model.SystemSchedulerActor,
		Metadata:  md,
		Timestamp: now,
	})
	if err := e.recorder.Record(opCtx, entry); err != nil {
		e.park(entry)
	}

	e.logger.Info("published scheduled content",
		"content_id", item.ID,
		"title", item.Title,
		"scheduled_for", scheduledFor)

	if e.deps.Events != nil {
		_ = e.deps.Events.LogInfo(opCtx, model.EventCategoryScheduler, "Content published on schedule", map[string]any{
			"content_id":    item.ID,
			"title":         item.Title,
			"slug":          item.Slug,
			"scheduled_for": md["scheduled_for"],
			"published_at":  md["published_at"],
		})
	}
	if e.deps.Slots != nil {
		e.deps.Slots.Invalidate(opCtx)
	}
	if e.deps.Notifier != nil {
		data := webhook.ContentEvent(item, d.From, model.SystemSchedulerActor)
		for _, eventType := range []string{webhook.EventContentTransitioned, webhook.EventContentPublished} {
			if err := e.deps.Notifier.DispatchEvent(opCtx, eventType, data); err != nil {
				e.logger.Warn("failed to dispatch publish event", "content_id", item.ID, "event", eventType, "error", err)
			}
		}
	}
	return true, nil
}

func (e *Executor) park(entry *model.WorkflowHistoryEntry) {
	e.mu.Lock()
	e.pending = append(e.pending, entry)
	n := len(e.pending)
	e.mu.Unlock()

	e.logger.Warn("history entry parked for retry",
		"category", model.EventCategoryHistory,
		"content_id", entry.ContentID,
		"entry_id", entry.ID,
		"pending", n)
}

// flushPending re-attempts parked history entries. The state writes they
// document are never repeated.
func (e *Executor) flushPending(ctx context.Context) {
	e.mu.Lock()
	parked := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(parked) == 0 {
		return
	}

	var failed []*model.WorkflowHistoryEntry
	for _, entry := range parked {
		if ctx.Err() != nil {
			failed = append(failed, entry)
			continue
		}
		if err := e.recorder.Record(ctx, entry); err != nil {
			failed = append(failed, entry)
			continue
		}
		e.logger.Info("parked history entry recorded", "content_id", entry.ContentID, "entry_id", entry.ID)
	}

	if len(failed) > 0 {
		e.mu.Lock()
		e.pending = append(failed, e.pending...)
		e.mu.Unlock()
	}
}

// PurgeEvents deletes system events older than the retention period.
func (e *Executor) PurgeEvents(ctx context.Context) (int64, error) {
	if e.deps.Events == nil || e.cfg.EventRetention <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()

	n, err := e.deps.Events.DeleteOldEvents(ctx, e.cfg.EventRetention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("deleted old system events", "count", n, "retention", e.cfg.EventRetention)
	}
	return n, nil
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
