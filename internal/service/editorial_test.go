// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/testutil"
	"github.com/olegiv/ocms-editorial/internal/webhook"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

var (
	now0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	author    = workflow.Actor{ID: "alice", Capabilities: workflow.Capabilities{Author: true}}
	editor    = workflow.Actor{ID: "ed", Capabilities: workflow.Capabilities{Review: true}}
	publisher = workflow.Actor{ID: "pat", Capabilities: workflow.Capabilities{Publish: true, Archive: true}}
	nobody    = workflow.Actor{ID: "guest"}
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	data   []webhook.ContentEventData
}

func (n *fakeNotifier) DispatchEvent(_ context.Context, eventType string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	if d, ok := data.(webhook.ContentEventData); ok {
		n.data = append(n.data, d)
	}
	return nil
}

type fakeSlots struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSlots) Invalidate(context.Context) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

type fixture struct {
	svc      *EditorialService
	db       *sql.DB
	clock    *clock.Fake
	notifier *fakeNotifier
	slots    *fakeSlots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestDB(t)
	f := &fixture{
		db:       db,
		clock:    clock.NewFake(now0),
		notifier: &fakeNotifier{},
		slots:    &fakeSlots{},
	}
	f.svc = NewEditorialService(db, f.clock, testutil.DiscardLogger(), Options{
		StorageTimeout: 5 * time.Second,
		Slots:          f.slots,
		Notifier:       f.notifier,
	})
	return f
}

func (f *fixture) draft(t *testing.T, title string) model.ContentItem {
	t.Helper()
	item, err := f.svc.CreateDraft(context.Background(), NewContent{Title: title}, author)
	require.NoError(t, err)
	return item
}

func (f *fixture) move(t *testing.T, id string, to model.Status, actor workflow.Actor) TransitionResult {
	t.Helper()
	req := TransitionRequest{ContentID: id, Target: to, Actor: actor}
	if to == model.StatusScheduled {
		at := f.clock.Now().Add(time.Hour)
		req.ScheduledPublishDate = &at
	}
	if to == model.StatusRejected {
		req.Notes = "needs sources"
	}
	res, err := f.svc.Transition(context.Background(), req)
	require.NoError(t, err, "transition to %s", to)
	return res
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.CreateDraft(ctx, NewContent{Kind: model.KindVideoArticle, Title: "  Café Society  "}, author)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, item.Status)
	assert.Equal(t, model.StageCreation, item.WorkflowStage)
	assert.Equal(t, "Café Society", item.Title)
	assert.Equal(t, "cafe-society", item.Slug)
	assert.Equal(t, "alice", item.AuthorID)
	assert.Equal(t, int64(1), item.Version)
	assert.Nil(t, item.PublishDate)
	assert.Nil(t, item.ScheduledPublishDate)

	again, err := f.svc.CreateDraft(ctx, NewContent{Kind: model.KindVideoArticle, Title: "Cafe society"}, author)
	require.NoError(t, err)
	assert.Equal(t, "cafe-society-2", again.Slug)

	other, err := f.svc.CreateDraft(ctx, NewContent{Kind: model.KindArticle, Title: "Cafe society"}, author)
	require.NoError(t, err)
	assert.Equal(t, "cafe-society", other.Slug, "slugs are unique per kind")

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Slug, stored.Slug)
	assert.Equal(t, model.KindVideoArticle, stored.Kind)
}

func TestCreateDraft_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDraft(ctx, NewContent{Title: "Story"}, editor)
	assert.True(t, errors.Is(err, workflow.ErrPermissionDenied))

	_, err = f.svc.CreateDraft(ctx, NewContent{Title: "Story"}, workflow.Actor{Capabilities: workflow.AllCapabilities()})
	assert.True(t, errors.Is(err, workflow.ErrPermissionDenied), "anonymous actors are rejected")

	_, err = f.svc.CreateDraft(ctx, NewContent{Title: "   "}, author)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	_, err = f.svc.CreateDraft(ctx, NewContent{Title: "Story", Kind: "podcast"}, author)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	_, err = f.svc.CreateDraft(ctx, NewContent{Title: "!!!"}, author)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))
}

func TestCreateDraft_SuppliedSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.CreateDraft(ctx, NewContent{Title: "Quarterly Outlook", Slug: "q3-outlook"}, author)
	require.NoError(t, err)
	assert.Equal(t, "q3-outlook", item.Slug)

	again, err := f.svc.CreateDraft(ctx, NewContent{Title: "Another Outlook", Slug: "q3-outlook"}, author)
	require.NoError(t, err)
	assert.Equal(t, "q3-outlook-2", again.Slug)

	for _, bad := range []string{"Q3 Outlook", "-q3", "q3--outlook", "q3_outlook", strings.Repeat("a", 97)} {
		_, err = f.svc.CreateDraft(ctx, NewContent{Title: "Outlook", Slug: bad}, author)
		assert.True(t, errors.Is(err, workflow.ErrInvalidInput), "slug %q", bad)
	}
}

func TestCreateDraft_KindDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.svc.CreateDraft(ctx, NewContent{
		Kind:    model.KindDownload,
		Title:   "Media Kit 2026",
		Details: json.RawMessage(`{"file_url":"https://example.com/kit.pdf","file_size":1048576}`),
	}, author)
	require.NoError(t, err)

	p, err := f.svc.Content(ctx, item.ID)
	require.NoError(t, err)
	download, ok := p.(*model.Download)
	require.True(t, ok, "got %T", p)
	assert.Equal(t, "https://example.com/kit.pdf", download.FileURL)
	assert.Equal(t, int64(1048576), download.FileSize)
	assert.Equal(t, model.StatusDraft, download.Item().Status)

	plain, err := f.svc.CreateDraft(ctx, NewContent{Title: "Plain Story"}, author)
	require.NoError(t, err)
	p, err = f.svc.Content(ctx, plain.ID)
	require.NoError(t, err)
	assert.IsType(t, &model.Article{}, p)

	_, err = f.svc.CreateDraft(ctx, NewContent{
		Kind:    model.KindArticle,
		Title:   "Mixed Up",
		Details: json.RawMessage(`{"video_url":"https://example.com/v.mp4"}`),
	}, author)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	_, err = f.svc.Content(ctx, "missing")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestTransition_RecordsHistoryAtomically(t *testing.T) {
	f := newFixture(t)
	item := f.draft(t, "Atomic")

	res := f.move(t, item.ID, model.StatusPendingReview, author)
	assert.Equal(t, model.StatusPendingReview, res.Item.Status)
	assert.Equal(t, model.StageSectionEditorReview, res.Item.WorkflowStage)
	assert.Equal(t, int64(2), res.Item.Version)
	assert.Equal(t, model.StatusDraft, res.Entry.FromStatus)
	assert.Equal(t, model.StatusPendingReview, res.Entry.ToStatus)
	assert.Equal(t, "alice", res.Entry.ChangedBy)
	assert.Equal(t, int64(1), res.Entry.Seq)
	assert.Equal(t, "editor", res.Entry.Metadata["trigger"])

	stored, err := f.svc.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, stored.Status)
	assert.Equal(t, res.Item.Version, stored.Version)

	entries, err := f.svc.History(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.Entry.ID, entries[0].ID)
}

func TestTransition_RejectedRequestsChangeNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Untouched")

	tests := []struct {
		name string
		req  TransitionRequest
		want error
	}{
		{"stage jump", TransitionRequest{ContentID: item.ID, Target: model.StatusPublished, Actor: publisher}, workflow.ErrIllegalTransition},
		{"self transition", TransitionRequest{ContentID: item.ID, Target: model.StatusDraft, Actor: author}, workflow.ErrIllegalTransition},
		{"missing capability", TransitionRequest{ContentID: item.ID, Target: model.StatusPendingReview, Actor: editor}, workflow.ErrPermissionDenied},
		{"missing actor", TransitionRequest{ContentID: item.ID, Target: model.StatusPendingReview}, workflow.ErrPermissionDenied},
		{"unknown item", TransitionRequest{ContentID: "nope", Target: model.StatusPendingReview, Actor: author}, workflow.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transition(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	entries, err := f.svc.History(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.notifier.events)
	assert.Zero(t, f.slots.calls)
}

func TestTransition_ScheduleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Timed")
	f.move(t, item.ID, model.StatusPendingReview, author)
	f.move(t, item.ID, model.StatusInReview, editor)
	f.move(t, item.ID, model.StatusApproved, editor)

	past := now0.Add(-time.Minute)
	_, err := f.svc.Transition(ctx, TransitionRequest{ContentID: item.ID, Target: model.StatusScheduled, Actor: publisher, ScheduledPublishDate: &past})
	assert.True(t, errors.Is(err, workflow.ErrIllegalTransition))

	_, err = f.svc.Transition(ctx, TransitionRequest{ContentID: item.ID, Target: model.StatusScheduled, Actor: publisher})
	assert.True(t, errors.Is(err, workflow.ErrIllegalTransition))

	at := time.Date(2026, 5, 5, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	res, err := f.svc.Transition(ctx, TransitionRequest{ContentID: item.ID, Target: model.StatusScheduled, Actor: publisher, ScheduledPublishDate: &at})
	require.NoError(t, err)
	require.NotNil(t, res.Item.ScheduledPublishDate)
	assert.True(t, res.Item.ScheduledPublishDate.Equal(at))
	assert.Equal(t, at.UTC().Format(time.RFC3339Nano), res.Entry.Metadata["scheduled_for"])

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ScheduledPublishDate)
	assert.True(t, stored.ScheduledPublishDate.Equal(at))
	assert.Equal(t, model.StageScheduling, stored.WorkflowStage)

	res = f.move(t, item.ID, model.StatusApproved, publisher)
	assert.Nil(t, res.Item.ScheduledPublishDate, "unscheduling clears the date")
}

func TestTransition_PublishSetsDateOnceAndNotifies(t *testing.T) {
	f := newFixture(t)
	item := f.draft(t, "Go live")
	f.move(t, item.ID, model.StatusPendingReview, author)
	f.move(t, item.ID, model.StatusInReview, editor)
	f.move(t, item.ID, model.StatusApproved, editor)

	res := f.move(t, item.ID, model.StatusPublished, publisher)
	require.NotNil(t, res.Item.PublishDate)
	assert.True(t, res.Item.PublishDate.Equal(now0))
	assert.Equal(t, model.StagePublished, res.Item.WorkflowStage)

	f.clock.Advance(24 * time.Hour)
	res = f.move(t, item.ID, model.StatusArchived, publisher)
	require.NotNil(t, res.Item.PublishDate)
	assert.True(t, res.Item.PublishDate.Equal(now0), "publish date is immutable")

	assert.Equal(t, []string{
		webhook.EventContentTransitioned,
		webhook.EventContentTransitioned,
		webhook.EventContentTransitioned,
		webhook.EventContentTransitioned,
		webhook.EventContentPublished,
		webhook.EventContentTransitioned,
	}, f.notifier.events)
	assert.Equal(t, 5, f.slots.calls)
}

func TestTransition_RejectNeedsNotesAndSanitizesThem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Rough")
	f.move(t, item.ID, model.StatusPendingReview, author)

	_, err := f.svc.Transition(ctx, TransitionRequest{ContentID: item.ID, Target: model.StatusRejected, Actor: editor, Notes: "  "})
	assert.True(t, errors.Is(err, workflow.ErrIllegalTransition))

	res, err := f.svc.Transition(ctx, TransitionRequest{
		ContentID: item.ID,
		Target:    model.StatusRejected,
		Actor:     editor,
		Notes:     `<script>alert(1)</script><b>Fix</b> the lede`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Fix the lede", res.Entry.Notes)

	res = f.move(t, item.ID, model.StatusDraft, author)
	assert.Equal(t, model.StageCreation, res.Item.WorkflowStage)
}

func TestTransition_ConcurrentWritersOneWins(t *testing.T) {
	f := newFixture(t)
	item := f.draft(t, "Contested")
	f.move(t, item.ID, model.StatusPendingReview, author)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transition(context.Background(), TransitionRequest{ContentID: item.ID, Target: model.StatusInReview, Actor: editor})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		code := workflow.CodeOf(err)
		assert.Contains(t, []workflow.Code{
			workflow.CodeConcurrencyLost,
			workflow.CodeIllegalTransition,
			workflow.CodeStorageTransient,
		}, code, "unexpected error %v", err)
	}

	entries, err := f.svc.History(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.StatusInReview, entries[1].ToStatus)
}

func TestAdvanceStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Stages")

	_, err := f.svc.AdvanceStage(ctx, item.ID, model.StageCopyEditing, editor)
	assert.True(t, errors.Is(err, workflow.ErrIllegalTransition), "only in_review items advance")

	f.move(t, item.ID, model.StatusPendingReview, author)
	f.move(t, item.ID, model.StatusInReview, editor)

	_, err = f.svc.AdvanceStage(ctx, item.ID, model.StageCopyEditing, author)
	assert.True(t, errors.Is(err, workflow.ErrPermissionDenied))

	got, err := f.svc.AdvanceStage(ctx, item.ID, model.StageCopyEditing, editor)
	require.NoError(t, err)
	assert.Equal(t, model.StageCopyEditing, got.WorkflowStage)
	assert.Equal(t, model.StatusInReview, got.Status)

	_, err = f.svc.AdvanceStage(ctx, item.ID, model.StageFactChecking, editor)
	assert.True(t, errors.Is(err, workflow.ErrIllegalTransition), "stages never move back")

	entries, err := f.svc.History(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "stage moves write no history")

	res := f.move(t, item.ID, model.StatusApproved, editor)
	assert.Equal(t, model.StageFinalReview, res.Item.WorkflowStage)
}

func TestUpdatePromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Promote me")

	boost := 7
	featured := true
	until := now0.Add(48 * time.Hour)
	patch := PromotionPatch{BoostLevel: &boost, Featured: &featured, SponsoredUntil: &until}

	_, err := f.svc.UpdatePromotion(ctx, item.ID, patch, item.Version, editor)
	assert.True(t, errors.Is(err, workflow.ErrPermissionDenied))

	_, err = f.svc.UpdatePromotion(ctx, item.ID, patch, item.Version+3, publisher)
	assert.True(t, errors.Is(err, workflow.ErrConcurrencyLost))

	tooMuch := MaxBoostLevel + 1
	_, err = f.svc.UpdatePromotion(ctx, item.ID, PromotionPatch{BoostLevel: &tooMuch}, item.Version, publisher)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	missing := "no-such-campaign"
	_, err = f.svc.UpdatePromotion(ctx, item.ID, PromotionPatch{CampaignID: &missing}, item.Version, publisher)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	got, err := f.svc.UpdatePromotion(ctx, item.ID, patch, item.Version, publisher)
	require.NoError(t, err)
	assert.Equal(t, 7, got.BoostLevel)
	assert.True(t, got.Featured)
	assert.Equal(t, item.Version+1, got.Version)
	assert.Equal(t, 1, f.slots.calls)

	got, err = f.svc.UpdatePromotion(ctx, item.ID, PromotionPatch{ClearSponsorship: true}, got.Version, publisher)
	require.NoError(t, err)
	assert.Nil(t, got.SponsoredUntil)
	assert.Equal(t, 7, got.BoostLevel, "untouched fields keep their value")

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, stored.Version)
	assert.Equal(t, model.StatusDraft, stored.Status)

	entries, err := f.svc.History(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "promotion edits write no history")
}

func TestVerifyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.draft(t, "Audit")
	f.move(t, item.ID, model.StatusPendingReview, author)
	f.move(t, item.ID, model.StatusRejected, editor)
	f.move(t, item.ID, model.StatusDraft, author)

	v, err := f.svc.VerifyHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Len(t, v.Entries, 3)

	// A write that bypassed the recorder leaves the trail inconsistent.
	_, err = f.db.Exec("UPDATE content_items SET status = 'approved' WHERE id = ?", item.ID)
	require.NoError(t, err)

	v, err = f.svc.VerifyHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.NotNil(t, v.Problem)
	assert.Equal(t, 3, v.Problem.Index)

	_, err = f.svc.VerifyHistory(ctx, "missing")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCampaign(ctx, NewCampaign{Name: "Spring"}, author)
	assert.True(t, errors.Is(err, workflow.ErrPermissionDenied))

	_, err = f.svc.CreateCampaign(ctx, NewCampaign{Name: ""}, publisher)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	start := now0
	end := now0.Add(-time.Hour)
	_, err = f.svc.CreateCampaign(ctx, NewCampaign{Name: "Backwards", StartDate: &start, EndDate: &end}, publisher)
	assert.True(t, errors.Is(err, workflow.ErrInvalidInput))

	c, err := f.svc.CreateCampaign(ctx, NewCampaign{Name: "Spring", Budget: 150000, Goals: "reach"}, publisher)
	require.NoError(t, err)

	got, err := f.svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring", got.Name)
	assert.Equal(t, int64(150000), got.Budget)

	list, err := f.svc.ListCampaigns(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	item := f.draft(t, "Sponsored story")
	got2, err := f.svc.UpdatePromotion(ctx, item.ID, PromotionPatch{CampaignID: &c.ID}, item.Version, publisher)
	require.NoError(t, err)
	require.NotNil(t, got2.CampaignID)
	assert.Equal(t, c.ID, *got2.CampaignID)

	_, err = f.svc.GetCampaign(ctx, "missing")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestCampaignActiveWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := now0.Add(time.Hour)
	end := now0.Add(3 * time.Hour)
	upcoming, err := f.svc.CreateCampaign(ctx, NewCampaign{Name: "Summer Launch", StartDate: &start, EndDate: &end}, publisher)
	require.NoError(t, err)
	assert.False(t, upcoming.Active)

	open, err := f.svc.CreateCampaign(ctx, NewCampaign{Name: "Evergreen"}, publisher)
	require.NoError(t, err)
	assert.True(t, open.Active)

	f.clock.Advance(2 * time.Hour)
	got, err := f.svc.GetCampaign(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	f.clock.Advance(time.Hour)
	list, err := f.svc.ListCampaigns(ctx, 0, 0)
	require.NoError(t, err)
	active := map[string]bool{}
	for _, c := range list {
		active[c.Name] = c.Active
	}
	assert.Equal(t, map[string]bool{"Summer Launch": false, "Evergreen": true}, active)
}

func TestHistory_UnknownItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.History(context.Background(), "missing")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}
