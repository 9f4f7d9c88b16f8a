// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// InsertHistory appends a history entry and assigns the next per-item seq.
// The entry's Seq field is set on success.
func (q *Queries) InsertHistory(ctx context.Context, e *model.WorkflowHistoryEntry) error {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode history metadata: %w", err)
		}
		metadata = string(b)
	}

	err := q.exec(ctx, `
		INSERT INTO workflow_history
		    (id, content_id, seq, from_status, to_status, changed_by, notes, metadata, created_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?
		FROM workflow_history WHERE content_id = ?`,
		e.ID, e.ContentID, string(e.FromStatus), string(e.ToStatus), e.ChangedBy, e.Notes, metadata,
		formatTime(e.Timestamp), e.ContentID,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if err := q.db.QueryRowContext(ctx,
		"SELECT seq FROM workflow_history WHERE id = ?", e.ID,
	).Scan(&e.Seq); err != nil {
		return Classify(fmt.Errorf("read history seq: %w", err))
	}
	return nil
}

// ListHistory returns every entry for contentID ordered by (timestamp, seq).
func (q *Queries) ListHistory(ctx context.Context, contentID string) ([]model.WorkflowHistoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, content_id, seq, from_status, to_status, changed_by, notes, metadata, created_at
		FROM workflow_history
		WHERE content_id = ?
		ORDER BY created_at ASC, seq ASC`, contentID)
	if err != nil {
		return nil, Classify(fmt.Errorf("list history: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var entries []model.WorkflowHistoryEntry
	for rows.Next() {
		var (
			e                 model.WorkflowHistoryEntry
			from, to          string
			metadata, created string
		)
		if err := rows.Scan(&e.ID, &e.ContentID, &e.Seq, &from, &to, &e.ChangedBy, &e.Notes, &metadata, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.FromStatus = model.Status(from)
		e.ToStatus = model.Status(to)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode history metadata for %s: %w", e.ID, err)
			}
		}
		if e.Timestamp, err = parseTime(created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(fmt.Errorf("list history: %w", err))
	}
	return entries, nil
}

// HistoryExists reports whether an entry with id has been stored.
func (q *Queries) HistoryExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_history WHERE id = ?", id).Scan(&n); err != nil {
		return false, Classify(fmt.Errorf("check history entry: %w", err))
	}
	return n > 0, nil
}
