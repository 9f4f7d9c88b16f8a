// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a custom slog handler that integrates with the
// durable system event log. It forwards records at WARN level and above to the
// system_events table so operators can audit failures such as exhausted
// history retries after the process output is gone.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
)

// EventWriter persists system events. *store.Queries satisfies it.
type EventWriter interface {
	CreateEvent(ctx context.Context, arg store.CreateEventParams) error
}

// eventWriteTimeout bounds a single event insert.
const eventWriteTimeout = 2 * time.Second

// EventLogHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level records to the event log.
type EventLogHandler struct {
	inner  slog.Handler
	writer EventWriter
	level  slog.Level // Minimum level to forward to the event log (default: WARN)
	attrs  []slog.Attr
}

// NewEventLogHandler creates a new EventLogHandler that wraps the given handler.
func NewEventLogHandler(inner slog.Handler, writer EventWriter) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, writer, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates a new EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, writer EventWriter, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:  inner,
		writer: writer,
		level:  level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeToEventLog(r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &EventLogHandler{
		inner:  h.inner.WithAttrs(attrs),
		writer: h.writer,
		level:  h.level,
		attrs:  merged,
	}
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	return &EventLogHandler{
		inner:  h.inner.WithGroup(name),
		writer: h.writer,
		level:  h.level,
		attrs:  h.attrs,
	}
}

// writeToEventLog uses its own context so the event survives a cancelled
// request or a stopping scheduler.
func (h *EventLogHandler) writeToEventLog(r slog.Record) {
	attrs := h.collectAttrs(r)

	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()

	_ = h.writer.CreateEvent(ctx, store.CreateEventParams{
		Level:     slogLevelToEventLevel(r.Level),
		Category:  extractCategory(r.Message, attrs),
		Message:   r.Message,
		Metadata:  extractMetadata(attrs),
		CreatedAt: r.Time,
	})
}

func (h *EventLogHandler) collectAttrs(r slog.Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return attrs
}

func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.EventLevelError
	case level >= slog.LevelWarn:
		return model.EventLevelWarning
	default:
		return model.EventLevelInfo
	}
}

// extractCategory returns the "category" attribute or infers one from the message.
func extractCategory(message string, attrs []slog.Attr) string {
	for _, a := range attrs {
		if a.Key == "category" {
			if c := a.Value.String(); c != "" {
				return c
			}
		}
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "history"):
		return model.EventCategoryHistory
	case strings.Contains(msg, "schedul") || strings.Contains(msg, "publish"):
		return model.EventCategoryScheduler
	case strings.Contains(msg, "transition") || strings.Contains(msg, "workflow"):
		return model.EventCategoryWorkflow
	case strings.Contains(msg, "promotion") || strings.Contains(msg, "slot"):
		return model.EventCategoryPromotion
	case strings.Contains(msg, "config") || strings.Contains(msg, "setting"):
		return model.EventCategoryConfig
	case strings.Contains(msg, "cache"):
		return model.EventCategoryCache
	default:
		return model.EventCategorySystem
	}
}

// extractMetadata renders attributes as a flat JSON object of strings.
func extractMetadata(attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return "{}"
	}

	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Key == "category" {
			continue
		}
		m[a.Key] = a.Value.Resolve().String()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// New builds the process logger: a text handler on w at level, wrapped in an
// EventLogHandler when writer is non-nil.
func New(w io.Writer, level slog.Level, writer EventWriter) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if writer != nil {
		h = NewEventLogHandler(h, writer)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
