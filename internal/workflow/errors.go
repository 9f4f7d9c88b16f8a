// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package workflow

import (
	"errors"
	"fmt"
)

// Code classifies a workflow error.
type Code string

// Error codes
const (
	CodeIllegalTransition Code = "illegal_transition"
	CodePermissionDenied  Code = "permission_denied"
	CodeConcurrencyLost   Code = "conflict"
	CodeStorageTransient  Code = "storage_unavailable"
	CodeHistoryWrite      Code = "history_write_failed"
	CodeNotFound          Code = "not_found"
	CodeInvalidInput      Code = "invalid_input"
)

// Sentinel errors for errors.Is matching. Any *Error with the same code matches.
var (
	ErrIllegalTransition = &Error{Code: CodeIllegalTransition}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied}
	ErrConcurrencyLost   = &Error{Code: CodeConcurrencyLost}
	ErrStorageTransient  = &Error{Code: CodeStorageTransient}
	ErrHistoryWrite      = &Error{Code: CodeHistoryWrite}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrInvalidInput      = &Error{Code: CodeInvalidInput}
)

// Error is a classified workflow failure carrying a human-readable reason.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may re-read and retry.
func (e *Error) Retryable() bool {
	return e.Code == CodeConcurrencyLost || e.Code == CodeStorageTransient
}

// Errorf creates an *Error with a formatted reason.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given cause.
func Wrap(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

// ReasonOf returns the human-readable reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var werr *Error
	if errors.As(err, &werr) && werr.Reason != "" {
		return werr.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
