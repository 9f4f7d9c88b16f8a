// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

type recordingWriter struct {
	mu     sync.Mutex
	events []store.CreateEventParams
}

func (w *recordingWriter) CreateEvent(_ context.Context, arg store.CreateEventParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, arg)
	return nil
}

func TestEventLogHandler_PersistsErrors(t *testing.T) {
	db := testutil.TestDB(t)
	q := store.New(db)

	logger := slog.New(NewEventLogHandler(discardHandler{}, q))
	logger.Error("history append failed after retries", "content_id", "abc", "attempts", 5)

	events, err := q.ListEvents(context.Background(), store.ListEventsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, model.EventLevelError, e.Level)
	assert.Equal(t, model.EventCategoryHistory, e.Category)
	assert.Equal(t, "history append failed after retries", e.Message)

	var meta map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.Metadata), &meta))
	assert.Equal(t, "abc", meta["content_id"])
	assert.Equal(t, "5", meta["attempts"])
}

func TestEventLogHandler_LevelThreshold(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(NewEventLogHandler(discardHandler{}, w))

	logger.Info("scan finished")
	logger.Debug("noise")
	logger.Warn("cache unavailable")

	require.Len(t, w.events, 1)
	assert.Equal(t, model.EventLevelWarning, w.events[0].Level)
	assert.Equal(t, model.EventCategoryCache, w.events[0].Category)
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(NewEventLogHandlerWithLevel(discardHandler{}, w, slog.LevelInfo))

	logger.Info("scheduled publish completed")

	require.Len(t, w.events, 1)
	assert.Equal(t, model.EventLevelInfo, w.events[0].Level)
	assert.Equal(t, model.EventCategoryScheduler, w.events[0].Category)
}

func TestEventLogHandler_ExplicitCategoryAndWithAttrs(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(NewEventLogHandler(discardHandler{}, w)).With("component", "executor")

	logger.Error("something odd", "category", model.EventCategoryWorkflow)

	require.Len(t, w.events, 1)
	assert.Equal(t, model.EventCategoryWorkflow, w.events[0].Category)

	var meta map[string]string
	require.NoError(t, json.Unmarshal([]byte(w.events[0].Metadata), &meta))
	assert.Equal(t, "executor", meta["component"])
	_, hasCategory := meta["category"]
	assert.False(t, hasCategory)
}

func TestEventLogHandler_ForwardsToInner(t *testing.T) {
	var buf bytes.Buffer
	w := &recordingWriter{}
	logger := New(&buf, slog.LevelInfo, w)

	logger.Info("transition accepted", "to", "published")

	assert.Contains(t, buf.String(), "transition accepted")
	assert.Contains(t, buf.String(), "to=published")
	assert.Empty(t, w.events)
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"history write failed", model.EventCategoryHistory},
		{"failed to publish item", model.EventCategoryScheduler},
		{"illegal transition attempted", model.EventCategoryWorkflow},
		{"slot query failed", model.EventCategoryPromotion},
		{"invalid config value", model.EventCategoryConfig},
		{"redis cache down", model.EventCategoryCache},
		{"unexpected", model.EventCategorySystem},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCategory(tt.msg, nil))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
