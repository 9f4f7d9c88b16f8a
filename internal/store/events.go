// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// CreateEventParams holds the fields of a new system event.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent appends a system event.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) error {
	metadata := arg.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	err := q.exec(ctx, `
		INSERT INTO system_events (level, category, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.Message, metadata, formatTime(arg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// ListEventsParams filters ListEvents.
type ListEventsParams struct {
	Level    string
	Category string
	Limit    int
}

// ListEvents returns the most recent events first.
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]model.Event, error) {
	query := "SELECT id, level, category, message, metadata, created_at FROM system_events WHERE 1 = 1"
	var args []any
	if arg.Level != "" {
		query += " AND level = ?"
		args = append(args, arg.Level)
	}
	if arg.Category != "" {
		query += " AND category = ?"
		args = append(args, arg.Category)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, arg.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(fmt.Errorf("list events: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		var (
			e       model.Event
			created string
		)
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.Metadata, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteOldEvents removes events created before cutoff and returns how many
// were deleted.
func (q *Queries) DeleteOldEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := q.execRows(ctx, "DELETE FROM system_events WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return n, nil
}
