// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"time"
)

// SystemSchedulerActor is the changedBy value for transitions driven by the
// scheduled publish executor.
const SystemSchedulerActor = "system:scheduler"

// WorkflowHistoryEntry is one immutable audit record of an accepted transition.
type WorkflowHistoryEntry struct {
	ID         string         `json:"id"`
	ContentID  string         `json:"content_id"`
	Seq        int64          `json:"seq"`
	FromStatus Status         `json:"from_status"`
	ToStatus   Status         `json:"to_status"`
	ChangedBy  string         `json:"changed_by"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
