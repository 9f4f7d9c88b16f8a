// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package history

import (
	"fmt"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// InconsistencyError reports where a history walk breaks.
type InconsistencyError struct {
	ContentID string `json:"content_id"`
	// Index is the offending entry, or len(entries) when the walk does not
	// end at the item's current status.
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("history of %s inconsistent at entry %d: %s", e.ContentID, e.Index, e.Reason)
}

// Verify replays entries from draft and checks that every step is a legal
// edge continuing from the previous one and that the walk ends at current.
func Verify(contentID string, entries []model.WorkflowHistoryEntry, current model.Status) error {
	prev := model.StatusDraft
	for i, e := range entries {
		if e.FromStatus != prev {
			return &InconsistencyError{
				ContentID: contentID,
				Index:     i,
				Reason:    fmt.Sprintf("entry starts at %s but the previous status is %s", e.FromStatus, prev),
			}
		}
		if !workflow.CanTransition(e.FromStatus, e.ToStatus) {
			return &InconsistencyError{
				ContentID: contentID,
				Index:     i,
				Reason:    fmt.Sprintf("%s to %s is not a legal transition", e.FromStatus, e.ToStatus),
			}
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			return &InconsistencyError{
				ContentID: contentID,
				Index:     i,
				Reason:    "timestamp goes backwards",
			}
		}
		prev = e.ToStatus
	}

	if prev != current {
		return &InconsistencyError{
			ContentID: contentID,
			Index:     len(entries),
			Reason:    fmt.Sprintf("history ends at %s but the item is %s", prev, current),
		}
	}
	return nil
}

// Replay returns the sequence of statuses the entries walk through,
// starting with draft.
func Replay(entries []model.WorkflowHistoryEntry) []model.Status {
	path := make([]model.Status, 0, len(entries)+1)
	path = append(path, model.StatusDraft)
	for _, e := range entries {
		path = append(path, e.ToStatus)
	}
	return path
}
