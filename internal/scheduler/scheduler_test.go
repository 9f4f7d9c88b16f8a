// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/history"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/testutil"
	"github.com/olegiv/ocms-editorial/internal/webhook"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

var now0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	data   []webhook.ContentEventData
}

func (n *recordingNotifier) DispatchEvent(_ context.Context, eventType string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	if d, ok := data.(webhook.ContentEventData); ok {
		n.data = append(n.data, d)
	}
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type countingSlots struct {
	calls atomic.Int32
}

func (s *countingSlots) Invalidate(context.Context) {
	s.calls.Add(1)
}

// flakyDB fails selected writes while its switches are on.
type flakyDB struct {
	*sql.DB
	failHistory atomic.Bool
	failID      atomic.Value // string
}

func (f *flakyDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.failHistory.Load() && strings.Contains(query, "INSERT INTO workflow_history") {
		return nil, errors.New("disk I/O error")
	}
	if id, _ := f.failID.Load().(string); id != "" && strings.Contains(query, "UPDATE content_items") {
		for _, arg := range args {
			if arg == id {
				return nil, errors.New("disk I/O error")
			}
		}
	}
	return f.DB.ExecContext(ctx, query, args...)
}

func fastHistory() history.RetryConfig {
	return history.RetryConfig{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

type fixture struct {
	db       *sql.DB
	clock    *clock.Fake
	notifier *recordingNotifier
	slots    *countingSlots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		db:       testutil.TestDB(t),
		clock:    clock.NewFake(now0),
		notifier: &recordingNotifier{},
		slots:    &countingSlots{},
	}
}

func (f *fixture) executor(db store.DBTX, mutate func(*Config, *Deps)) *Executor {
	cfg := DefaultConfig()
	cfg.History = fastHistory()
	deps := Deps{
		Clock:    f.clock,
		Slots:    f.slots,
		Notifier: f.notifier,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	return New(db, cfg, deps, testutil.DiscardLogger())
}

func (f *fixture) history(t *testing.T, id string) []model.WorkflowHistoryEntry {
	t.Helper()
	entries, err := store.New(f.db).ListHistory(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func (f *fixture) item(t *testing.T, id string) model.ContentItem {
	t.Helper()
	item, err := store.New(f.db).GetContent(context.Background(), id)
	require.NoError(t, err)
	return item
}

func TestRunOncePublishesDueItems(t *testing.T) {
	f := newFixture(t)
	due := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))
	later := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(time.Hour)))
	draft := testutil.InsertItem(t, f.db)

	e := f.executor(f.db, nil)
	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Due: 1, Published: 1}, res)

	got := f.item(t, due.ID)
	assert.Equal(t, model.StatusPublished, got.Status)
	assert.Equal(t, model.StagePublished, got.WorkflowStage)
	assert.Nil(t, got.ScheduledPublishDate)
	require.NotNil(t, got.PublishDate)
	assert.True(t, got.PublishDate.Equal(now0))
	assert.Equal(t, int64(2), got.Version)

	entries := f.history(t, due.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusScheduled, entries[0].FromStatus)
	assert.Equal(t, model.StatusPublished, entries[0].ToStatus)
	assert.Equal(t, model.SystemSchedulerActor, entries[0].ChangedBy)
	assert.Equal(t, "scheduler", entries[0].Metadata["trigger"])
	assert.NotEmpty(t, entries[0].Metadata["scheduled_for"])
	assert.NotEmpty(t, entries[0].Metadata["published_at"])

	assert.Equal(t, model.StatusScheduled, f.item(t, later.ID).Status)
	assert.Equal(t, model.StatusDraft, f.item(t, draft.ID).Status)
	assert.Empty(t, f.history(t, later.ID))

	assert.Equal(t, []string{webhook.EventContentTransitioned, webhook.EventContentPublished}, f.notifier.Events())
	assert.Equal(t, model.SystemSchedulerActor, f.notifier.data[0].ChangedBy)
	assert.Equal(t, int32(1), f.slots.calls.Load())
	assert.Equal(t, StateIdle, e.State())
}

func TestRunOnceNothingDue(t *testing.T) {
	f := newFixture(t)
	testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(time.Second)))

	e := f.executor(f.db, nil)
	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, res)
	assert.Empty(t, f.notifier.Events())

	f.clock.Advance(time.Second)
	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
}

func TestRunOnceKeepsExistingPublishDate(t *testing.T) {
	f := newFixture(t)
	earlier := now0.Add(-48 * time.Hour)
	item := testutil.InsertItem(t, f.db,
		testutil.WithScheduled(now0.Add(-time.Minute)),
		func(c *model.ContentItem) { c.PublishDate = &earlier },
	)

	_, err := f.executor(f.db, nil).RunOnce(context.Background())
	require.NoError(t, err)

	got := f.item(t, item.ID)
	assert.Equal(t, model.StatusPublished, got.Status)
	require.NotNil(t, got.PublishDate)
	assert.True(t, got.PublishDate.Equal(earlier))
}

func TestRunOnceBatchSize(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Duration(i+1)*time.Minute)))
	}

	e := f.executor(f.db, func(cfg *Config, _ *Deps) { cfg.BatchSize = 2 })

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)

	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
}

func TestConcurrentExecutorsPublishOnce(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute))).ID)
	}

	a := f.executor(f.db, nil)
	b := f.executor(f.db, nil)

	var wg sync.WaitGroup
	results := make([]RunResult, 2)
	errs := make([]error, 2)
	for i, e := range []*Executor{a, b} {
		wg.Add(1)
		go func(i int, e *Executor) {
			defer wg.Done()
			results[i], errs[i] = e.RunOnce(context.Background())
		}(i, e)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 10, results[0].Published+results[1].Published)
	assert.Equal(t, 0, results[0].Failed+results[1].Failed)

	for _, id := range ids {
		assert.Equal(t, model.StatusPublished, f.item(t, id).Status)
		assert.Len(t, f.history(t, id), 1, "item %s", id)
	}
	assert.Len(t, f.notifier.Events(), 20)
}

func TestPublishLosesRaceSilently(t *testing.T) {
	f := newFixture(t)
	item := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	a := f.executor(f.db, nil)
	b := f.executor(f.db, nil)

	_, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	// b still holds the pre-publish snapshot.
	published, err := b.publish(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, published)
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestRunOnceIsolatesItemFailures(t *testing.T) {
	f := newFixture(t)
	broken := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-3*time.Minute)))
	ok1 := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-2*time.Minute)))
	ok2 := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	flaky := &flakyDB{DB: f.db}
	flaky.failID.Store(broken.ID)
	e := f.executor(flaky, nil)

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Due: 3, Published: 2, Failed: 1}, res)

	assert.Equal(t, model.StatusScheduled, f.item(t, broken.ID).Status)
	assert.Empty(t, f.history(t, broken.ID))
	assert.Equal(t, model.StatusPublished, f.item(t, ok1.ID).Status)
	assert.Equal(t, model.StatusPublished, f.item(t, ok2.ID).Status)

	flaky.failID.Store("")
	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Due: 1, Published: 1}, res)
	assert.Equal(t, model.StatusPublished, f.item(t, broken.ID).Status)
}

func TestHistoryParkedAndFlushed(t *testing.T) {
	f := newFixture(t)
	item := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	flaky := &flakyDB{DB: f.db}
	flaky.failHistory.Store(true)
	e := f.executor(flaky, nil)

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 1, res.HistoryPending)
	assert.Equal(t, 1, e.PendingHistory())
	assert.Equal(t, model.StatusPublished, f.item(t, item.ID).Status)
	assert.Empty(t, f.history(t, item.ID))

	flaky.failHistory.Store(false)
	res, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, res)
	assert.Equal(t, 0, e.PendingHistory())

	entries := f.history(t, item.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SystemSchedulerActor, entries[0].ChangedBy)
	assert.True(t, entries[0].Timestamp.Equal(now0))

	// The state write is not repeated.
	assert.Equal(t, int64(2), f.item(t, item.ID).Version)
}

func TestPublishSkipsSnapshotsThatAreNotDue(t *testing.T) {
	f := newFixture(t)
	future := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(time.Hour)))
	approved := testutil.InsertItem(t, f.db, testutil.WithStatus(model.StatusApproved, model.StageFinalReview))

	flaky := &flakyDB{DB: f.db}
	e := f.executor(flaky, nil)

	for _, item := range []model.ContentItem{future, approved} {
		// Any write for the item would fail, so a clean skip proves none was tried.
		flaky.failID.Store(item.ID)
		published, err := e.publish(context.Background(), item)
		require.NoError(t, err, item.ID)
		assert.False(t, published)
		assert.Equal(t, int64(1), f.item(t, item.ID).Version)
		assert.Empty(t, f.history(t, item.ID))
	}
	assert.Empty(t, f.notifier.Events())
}

func TestStopFlushesParkedHistory(t *testing.T) {
	f := newFixture(t)
	item := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	flaky := &flakyDB{DB: f.db}
	flaky.failHistory.Store(true)
	e := f.executor(flaky, nil)

	_, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, e.PendingHistory())

	flaky.failHistory.Store(false)
	e.Stop()

	assert.Equal(t, 0, e.PendingHistory())
	assert.Len(t, f.history(t, item.ID), 1)
	assert.Equal(t, StateStopped, e.State())

	_, err = e.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestEditorialScenarioEndsWithSchedulerEntry(t *testing.T) {
	f := newFixture(t)
	svc := service.NewEditorialService(f.db, f.clock, testutil.DiscardLogger(), service.Options{
		StorageTimeout: 5 * time.Second,
		Slots:          f.slots,
		Notifier:       f.notifier,
	})

	author := workflow.Actor{ID: "alice", Capabilities: workflow.Capabilities{Author: true}}
	editor := workflow.Actor{ID: "ed", Capabilities: workflow.Capabilities{Review: true}}
	publisher := workflow.Actor{ID: "pat", Capabilities: workflow.Capabilities{Publish: true}}

	ctx := context.Background()
	item, err := svc.CreateDraft(ctx, service.NewContent{Title: "Harbour reopens"}, author)
	require.NoError(t, err)

	steps := []struct {
		to    model.Status
		actor workflow.Actor
	}{
		{model.StatusPendingReview, author},
		{model.StatusInReview, editor},
		{model.StatusApproved, editor},
	}
	for _, step := range steps {
		f.clock.Advance(time.Minute)
		_, err := svc.Transition(ctx, service.TransitionRequest{ContentID: item.ID, Target: step.to, Actor: step.actor})
		require.NoError(t, err, "transition to %s", step.to)
	}

	f.clock.Advance(time.Minute)
	publishAt := f.clock.Now().Add(time.Hour)
	_, err = svc.Transition(ctx, service.TransitionRequest{
		ContentID:            item.ID,
		Target:               model.StatusScheduled,
		Actor:                publisher,
		ScheduledPublishDate: &publishAt,
	})
	require.NoError(t, err)

	e := f.executor(f.db, nil)
	res, err := e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Published)

	f.clock.Set(publishAt.Add(30 * time.Second))
	res, err = e.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)

	entries, err := svc.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	last := entries[4]
	assert.Equal(t, model.StatusScheduled, last.FromStatus)
	assert.Equal(t, model.StatusPublished, last.ToStatus)
	assert.Equal(t, model.SystemSchedulerActor, last.ChangedBy)

	got := f.item(t, item.ID)
	require.NotNil(t, got.PublishDate)
	assert.True(t, got.PublishDate.Equal(publishAt.Add(30*time.Second)))
	assert.NoError(t, history.Verify(item.ID, entries, got.Status))
}

func TestFileLockerStandby(t *testing.T) {
	f := newFixture(t)
	lockPath := filepath.Join(t.TempDir(), "scheduler.lock")
	testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	a := f.executor(f.db, func(_ *Config, d *Deps) { d.Locker = NewFileLocker(lockPath) })
	b := f.executor(f.db, func(_ *Config, d *Deps) { d.Locker = NewFileLocker(lockPath) })

	res, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	assert.True(t, a.Status().Leader)

	testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))
	res, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Standby)
	assert.False(t, b.Status().Leader)

	a.Stop()

	res, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Standby)
	assert.Equal(t, 1, res.Published)
	assert.True(t, b.Status().Leader)
	b.Stop()
}

func TestStartRegistersJobsAndTrigger(t *testing.T) {
	f := newFixture(t)
	events := service.NewEventService(f.db, f.clock, testutil.DiscardLogger())
	item := testutil.InsertItem(t, f.db, testutil.WithScheduled(now0.Add(-time.Minute)))

	e := f.executor(f.db, func(cfg *Config, d *Deps) {
		cfg.Interval = time.Hour
		d.Events = events
	})
	require.NoError(t, e.Start())
	defer e.Stop()

	jobs := e.Registry().List()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobEventRetention, jobs[0].Name)
	assert.Equal(t, JobPublishDue, jobs[1].Name)
	assert.Equal(t, "@every 1h0m0s", jobs[1].Schedule)
	assert.True(t, jobs[1].CanTrigger)

	require.NoError(t, e.Registry().TriggerNow(JobSource, JobPublishDue))
	assert.Equal(t, model.StatusPublished, f.item(t, item.ID).Status)

	st := e.Status()
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.LastRunAt)
	assert.Equal(t, 1, st.LastResult.Published)

	logged, err := events.List(context.Background(), "", model.EventCategoryScheduler, 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, "Content published on schedule", logged[0].Message)
}

func TestPurgeEvents(t *testing.T) {
	f := newFixture(t)
	events := service.NewEventService(f.db, f.clock, testutil.DiscardLogger())
	ctx := context.Background()

	require.NoError(t, events.LogInfo(ctx, model.EventCategorySystem, "old", nil))
	f.clock.Advance(40 * 24 * time.Hour)
	require.NoError(t, events.LogInfo(ctx, model.EventCategorySystem, "recent", nil))

	e := f.executor(f.db, func(_ *Config, d *Deps) { d.Events = events })
	n, err := e.PurgeEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := events.List(ctx, "", "", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "recent", left[0].Message)
}
