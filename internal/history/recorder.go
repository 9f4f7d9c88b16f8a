// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package history records and verifies the append-only workflow audit trail.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/util"
)

// Entry describes a transition to record.
type Entry struct {
	ContentID string
	From      model.Status
	To        model.Status
	ChangedBy string
	Notes     string
	Metadata  map[string]any
	Timestamp time.Time
}

// NewEntry builds the immutable history row for e with a fresh id and
// sanitized notes.
func NewEntry(e Entry) *model.WorkflowHistoryEntry {
	return &model.WorkflowHistoryEntry{
		ID:         uuid.NewString(),
		ContentID:  e.ContentID,
		FromStatus: e.From,
		ToStatus:   e.To,
		ChangedBy:  e.ChangedBy,
		Notes:      util.SanitizeText(e.Notes),
		Metadata:   e.Metadata,
		Timestamp:  e.Timestamp.UTC(),
	}
}

// Recorder appends entries. It never updates or deletes them.
type Recorder struct{}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends entry using db, which may be a transaction shared with the
// state write it documents. The entry's Seq is set on success.
func (r *Recorder) Record(ctx context.Context, db store.DBTX, entry *model.WorkflowHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := store.New(db).InsertHistory(ctx, entry); err != nil {
		return fmt.Errorf("record history for %s: %w", entry.ContentID, err)
	}
	return nil
}

// List returns the entries for contentID ordered by (timestamp, seq).
func (r *Recorder) List(ctx context.Context, db store.DBTX, contentID string) ([]model.WorkflowHistoryEntry, error) {
	entries, err := store.New(db).ListHistory(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", contentID, err)
	}
	return entries, nil
}
