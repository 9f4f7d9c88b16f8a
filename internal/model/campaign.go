// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"time"
)

// Campaign groups promoted content under a marketing effort.
type Campaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	Budget         int64      `json:"budget"` // minor currency units
	Goals          string     `json:"goals,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Active is computed with ActiveAt when the campaign is read; it is not stored.
	Active bool `json:"active"`
}

// ActiveAt reports whether now falls inside the campaign's date range.
// Open-ended bounds are treated as unbounded.
func (c *Campaign) ActiveAt(now time.Time) bool {
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && !now.Before(*c.EndDate) {
		return false
	}
	return true
}
