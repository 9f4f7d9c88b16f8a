// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"
)

// GetSchedulerOverride returns the stored schedule for a job, or sql.ErrNoRows.
func (q *Queries) GetSchedulerOverride(ctx context.Context, source, name string) (string, error) {
	var schedule string
	err := q.db.QueryRowContext(ctx,
		"SELECT override_schedule FROM scheduler_overrides WHERE source = ? AND name = ?", source, name,
	).Scan(&schedule)
	return schedule, err
}

// UpsertSchedulerOverride stores a schedule override for a job.
func (q *Queries) UpsertSchedulerOverride(ctx context.Context, source, name, schedule string, now time.Time) error {
	existing, err := q.GetSchedulerOverride(ctx, source, name)
	switch {
	case err == nil && existing == schedule:
		return nil
	case err == nil:
		err = q.exec(ctx,
			"UPDATE scheduler_overrides SET override_schedule = ?, updated_at = ? WHERE source = ? AND name = ?",
			schedule, formatTime(now), source, name,
		)
	case IsNotFound(err):
		err = q.exec(ctx,
			"INSERT INTO scheduler_overrides (source, name, override_schedule, updated_at) VALUES (?, ?, ?, ?)",
			source, name, schedule, formatTime(now),
		)
	}
	if err != nil {
		return fmt.Errorf("upsert scheduler override: %w", err)
	}
	return nil
}

// DeleteSchedulerOverride removes a job's schedule override.
func (q *Queries) DeleteSchedulerOverride(ctx context.Context, source, name string) error {
	return q.exec(ctx, "DELETE FROM scheduler_overrides WHERE source = ? AND name = ?", source, name)
}
