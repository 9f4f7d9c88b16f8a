// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
)

// Locker decides which process runs scans. Publishing stays correct without
// it because every publish is a conditional update; a Locker only avoids
// duplicate work. Leader election across hosts plugs in here.
type Locker interface {
	// TryLock reports whether this process holds the lock after the call.
	TryLock(ctx context.Context) (bool, error)
	Unlock() error
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

// TryLock implements Locker.
func (NoopLocker) TryLock(context.Context) (bool, error) { return true, nil }

// Unlock implements Locker.
func (NoopLocker) Unlock() error { return nil }

// FileLocker holds an exclusive lock file so that a second process on the
// same host stands by.
type FileLocker struct {
	path string
	lock *flock.Flock
}

// NewFileLocker creates a FileLocker for path.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path, lock: flock.New(path)}
}

// TryLock implements Locker without blocking.
func (l *FileLocker) TryLock(context.Context) (bool, error) {
	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire scheduler lock %s: %w", l.path, err)
	}
	return ok, nil
}

// Unlock implements Locker.
func (l *FileLocker) Unlock() error {
	return l.lock.Unlock()
}

// Path returns the lock file path.
func (l *FileLocker) Path() string {
	return l.path
}
