// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// Event list bounds.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

// EventService writes and reads the durable system event log.
type EventService struct {
	queries *store.Queries
	clock   clock.Clock
	logger  *slog.Logger
}

// NewEventService creates a new EventService.
func NewEventService(db store.DBTX, clk clock.Clock, logger *slog.Logger) *EventService {
	return &EventService{
		queries: store.New(db),
		clock:   clk,
		logger:  logger,
	}
}

// LogEvent creates a new event log entry.
func (s *EventService) LogEvent(ctx context.Context, level, category, message string, metadata map[string]any) error {
	metadataJSON := "{}"
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			metadataJSON = string(jsonBytes)
		}
	}

	err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		Metadata:  metadataJSON,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Debug("failed to log event", "message", message, "error", err)
		return err
	}

	return nil
}

// LogInfo logs an info-level event.
func (s *EventService) LogInfo(ctx context.Context, category, message string, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelInfo, category, message, metadata)
}

// LogWarning logs a warning-level event.
func (s *EventService) LogWarning(ctx context.Context, category, message string, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelWarning, category, message, metadata)
}

// LogError logs an error-level event.
func (s *EventService) LogError(ctx context.Context, category, message string, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelError, category, message, metadata)
}

// List returns the newest events, optionally filtered by level and category.
func (s *EventService) List(ctx context.Context, level, category string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	return s.queries.ListEvents(ctx, store.ListEventsParams{
		Level:    level,
		Category: category,
		Limit:    limit,
	})
}

// DeleteOldEvents removes events older than the specified duration.
func (s *EventService) DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	return s.queries.DeleteOldEvents(ctx, cutoff)
}
