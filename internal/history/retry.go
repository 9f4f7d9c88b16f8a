// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// RetryConfig bounds the retry budget for a history append.
type RetryConfig struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the default budget: five retries from 50ms up to 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// RetryingRecorder appends entries outside a transaction with a bounded
// exponential backoff. Appends are idempotent on the entry id.
type RetryingRecorder struct {
	db       store.DBTX
	recorder *Recorder
	cfg      RetryConfig
	logger   *slog.Logger
}

// NewRetryingRecorder wraps recorder with the given budget.
func NewRetryingRecorder(db store.DBTX, recorder *Recorder, cfg RetryConfig, logger *slog.Logger) *RetryingRecorder {
	def := DefaultRetryConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &RetryingRecorder{
		db:       db,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Record appends entry, retrying failures within the budget. When the budget
// is exhausted it logs a durability alarm and returns a workflow error with
// CodeHistoryWrite.
func (r *RetryingRecorder) Record(ctx context.Context, entry *model.WorkflowHistoryEntry) error {
	b := retry.NewExponential(r.cfg.InitialBackoff)
	b = retry.WithCappedDuration(r.cfg.MaxBackoff, b)
	b = retry.WithMaxRetries(r.cfg.MaxRetries, b)

	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := r.attempt(ctx, entry, attempts > 1)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		r.logger.Debug("history append attempt failed",
			"content_id", entry.ContentID,
			"attempt", attempts,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	r.logger.Error("history append failed after retries",
		"category", model.EventCategoryHistory,
		"content_id", entry.ContentID,
		"entry_id", entry.ID,
		"from", entry.FromStatus,
		"to", entry.ToStatus,
		"attempts", attempts,
		"error", err,
	)
	return workflow.Wrap(workflow.CodeHistoryWrite, "history entry for "+entry.ContentID+" not recorded", err)
}

func (r *RetryingRecorder) attempt(ctx context.Context, entry *model.WorkflowHistoryEntry, checkExisting bool) error {
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	// An earlier attempt may have committed before its error surfaced.
	if checkExisting {
		exists, err := store.New(r.db).HistoryExists(ctx, entry.ID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	return r.recorder.Record(ctx, r.db, entry)
}
