// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides durable storage for content items, workflow history,
// campaigns and system events on SQLite or MySQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries runs the store's statements against a DBTX.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// DB returns the underlying DBTX.
func (q *Queries) DB() DBTX {
	return q.db
}

// InTx runs fn inside a transaction on db. The transaction is committed when
// fn returns nil and rolled back otherwise. SQLite busy errors on begin and
// commit are retried.
func InTx(ctx context.Context, db *sql.DB, fn func(q *Queries) error) error {
	var tx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var beginErr error
		tx, beginErr = db.BeginTx(ctx, nil)
		return beginErr
	}); err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(New(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
