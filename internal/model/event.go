// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"
)

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryWorkflow  = "workflow"
	EventCategoryScheduler = "scheduler"
	EventCategoryHistory   = "history"
	EventCategoryPromotion = "promotion"
	EventCategoryConfig    = "config"
	EventCategoryCache     = "cache"
	EventCategorySystem    = "system"
)

// ValidEventLevel reports whether level is one of the stored event levels.
func ValidEventLevel(level string) bool {
	switch level {
	case EventLevelInfo, EventLevelWarning, EventLevelError:
		return true
	}
	return false
}

// Event represents a durable system event log entry.
type Event struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata"` // JSON string
	CreatedAt time.Time `json:"created_at"`
}

// MetadataMap decodes Metadata. Empty or malformed metadata yields an
// empty map.
func (e Event) MetadataMap() map[string]any {
	out := map[string]any{}
	if e.Metadata == "" {
		return out
	}
	if err := json.Unmarshal([]byte(e.Metadata), &out); err != nil {
		return map[string]any{}
	}
	return out
}
