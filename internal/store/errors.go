// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"

	"github.com/olegiv/ocms-editorial/internal/workflow"
)

const (
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// MySQL server error numbers that indicate a transient condition.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// Extended result codes keep the primary code in the low byte.
		switch coder.Code() & 0xff {
		case sqliteBusyCode, sqliteLockedCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	b := retry.NewExponential(busyRetryInitialBackoff)
	b = retry.WithCappedDuration(busyRetryMaxBackoff, b)
	b = retry.WithMaxRetries(busyRetryAttempts-1, b)
	return retry.Do(ctx, b, func(context.Context) error {
		err := op()
		if isSQLiteBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err is a storage failure worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
	}
	return isSQLiteBusy(err)
}

// Classify wraps transient storage failures as workflow.ErrStorageTransient.
// Other errors, including already classified ones, are returned unchanged.
func Classify(err error) error {
	if err == nil || workflow.CodeOf(err) != "" {
		return err
	}
	if IsTransient(err) {
		return workflow.Wrap(workflow.CodeStorageTransient, "storage unavailable", err)
	}
	return err
}

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
