// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, Status("deleted").Valid())
	assert.False(t, Status("").Valid())
}

func TestStage_Rank(t *testing.T) {
	assert.Equal(t, 0, StageCreation.Rank())
	assert.Less(t, StageFactChecking.Rank(), StageCopyEditing.Rank())
	assert.Less(t, StageCopyEditing.Rank(), StageFinalReview.Rank())
	assert.Equal(t, -1, Stage("proofreading").Rank())
	assert.False(t, Stage("proofreading").Valid())
}

func TestPromotion_IsSponsoredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	p := Promotion{}
	assert.False(t, p.IsSponsoredAt(now), "nil window is never sponsored")

	p.SponsoredUntil = &until
	assert.True(t, p.IsSponsoredAt(now))
	assert.False(t, p.IsSponsoredAt(until), "window closes at sponsoredUntil")
	assert.False(t, p.IsSponsoredAt(until.Add(time.Second)))
}

func TestContentItem_IsDueAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	due := now

	item := ContentItem{Status: StatusScheduled, ScheduledPublishDate: &due}
	assert.True(t, item.IsDueAt(now))
	assert.False(t, item.IsDueAt(now.Add(-time.Second)))

	item.Status = StatusApproved
	assert.False(t, item.IsDueAt(now))
}

func TestWrap(t *testing.T) {
	tests := []struct {
		kind Kind
		want Kind
	}{
		{KindArticle, KindArticle},
		{KindVideoArticle, KindVideoArticle},
		{KindList, KindList},
		{KindDownload, KindDownload},
		{Kind(""), KindArticle},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			p, err := Wrap(ContentItem{ID: "x", Kind: tt.kind, Status: StatusDraft})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Kind())
			assert.Equal(t, "x", p.Item().ID)
			assert.Equal(t, StatusDraft, p.Item().Status)
		})
	}
}

func TestWrapDecodesDetails(t *testing.T) {
	p, err := Wrap(ContentItem{
		ID:      "v1",
		Kind:    KindVideoArticle,
		Title:   "Launch Day",
		Details: json.RawMessage(`{"video_url":"https://cdn.example.com/launch.mp4","duration":95}`),
	})
	require.NoError(t, err)
	video, ok := p.(*VideoArticle)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/launch.mp4", video.VideoURL)
	assert.Equal(t, 95, video.Duration)

	// Shared and kind-specific fields encode side by side.
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "Launch Day", flat["title"])
	assert.Equal(t, "https://cdn.example.com/launch.mp4", flat["video_url"])
	assert.NotContains(t, flat, "Details")

	_, err = Wrap(ContentItem{Kind: KindList, Details: json.RawMessage(`{"year":"soon"}`)})
	assert.Error(t, err)
}

func TestNormalizeDetails(t *testing.T) {
	got, err := NormalizeDetails(KindDownload, json.RawMessage(` {"file_size": 2048, "file_url": "https://example.com/kit.pdf"} `))
	require.NoError(t, err)
	assert.JSONEq(t, `{"file_url":"https://example.com/kit.pdf","file_size":2048}`, string(got))

	for _, empty := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("  ")} {
		got, err = NormalizeDetails(KindArticle, empty)
		require.NoError(t, err)
		assert.Equal(t, "{}", string(got))
	}

	_, err = NormalizeDetails(KindArticle, json.RawMessage(`{"video_url":"x"}`))
	assert.Error(t, err, "fields of another kind are rejected")

	_, err = NormalizeDetails(KindList, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestCampaign_ActiveAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	c := Campaign{StartDate: &start, EndDate: &end}

	assert.False(t, c.ActiveAt(start.Add(-time.Second)))
	assert.True(t, c.ActiveAt(start))
	assert.True(t, c.ActiveAt(end.Add(-time.Second)))
	assert.False(t, c.ActiveAt(end))

	open := Campaign{}
	assert.True(t, open.ActiveAt(start))
}
