// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webhook provides outbound event notifications to configured
// HTTP endpoints.
package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/ocms-editorial/internal/model"
)

// Event types
const (
	EventContentTransitioned = "content.transitioned"
	EventContentPublished    = "content.published"
	EventTest                = "webhook.test"
)

// Event represents a webhook event to be dispatched.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent creates a new webhook event.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ContentEventData describes a content item after a status change.
type ContentEventData struct {
	ID                   string       `json:"id"`
	Kind                 model.Kind   `json:"kind"`
	Title                string       `json:"title"`
	Slug                 string       `json:"slug"`
	From                 model.Status `json:"from_status"`
	To                   model.Status `json:"to_status"`
	Stage                model.Stage  `json:"workflow_stage"`
	ChangedBy            string       `json:"changed_by"`
	ScheduledPublishDate *time.Time   `json:"scheduled_publish_date,omitempty"`
	PublishDate          *time.Time   `json:"publish_date,omitempty"`
}

// ContentEvent builds the payload for item, which must already hold its new state.
func ContentEvent(item model.ContentItem, from model.Status, changedBy string) ContentEventData {
	return ContentEventData{
		ID:                   item.ID,
		Kind:                 item.Kind,
		Title:                item.Title,
		Slug:                 item.Slug,
		From:                 from,
		To:                   item.Status,
		Stage:                item.WorkflowStage,
		ChangedBy:            changedBy,
		ScheduledPublishDate: item.ScheduledPublishDate,
		PublishDate:          item.PublishDate,
	}
}

// TestEventData contains data for test webhook events.
type TestEventData struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
