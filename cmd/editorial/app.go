// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/olegiv/ocms-editorial/internal/cache"
	"github.com/olegiv/ocms-editorial/internal/clock"
	"github.com/olegiv/ocms-editorial/internal/config"
	"github.com/olegiv/ocms-editorial/internal/logging"
	"github.com/olegiv/ocms-editorial/internal/promotion"
	"github.com/olegiv/ocms-editorial/internal/scheduler"
	"github.com/olegiv/ocms-editorial/internal/service"
	"github.com/olegiv/ocms-editorial/internal/store"
	"github.com/olegiv/ocms-editorial/internal/webhook"
)

// app is the wired set of components shared by the commands.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	logger     *slog.Logger
	cache      cache.Cache
	promotions *promotion.Engine
	webhooks   *webhook.Dispatcher
	events     *service.EventService
	editorial  *service.EditorialService
	executor   *scheduler.Executor
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.DBDriver == store.DriverSQLite {
		if dir := sqliteDir(cfg.DBDSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	logger.Info("initializing database", "driver", cfg.DBDriver)
	db, err := store.NewDBWithConfig(cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	logger.Info("running database migrations")
	if err := store.MigrateDriver(db, cfg.DBDriver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// sqliteDir returns the directory holding a file-backed SQLite DSN.
func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

// newApp wires every component. Logs go to out; once the database is ready
// WARN and above are also written to the event log.
func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	logger := logging.New(out, cfg.SlogLevel(), nil)

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger = logging.New(out, cfg.SlogLevel(), store.New(db))
	slog.SetDefault(logger)

	clk := clock.Real{}
	a := &app{cfg: cfg, db: db, logger: logger}

	a.cache = cache.New(cfg.CacheConfig(), logger)
	a.promotions = promotion.NewEngine(store.New(db), a.cache, clk, cfg.PromotionConfig(), logger)
	a.webhooks = webhook.NewDispatcher(cfg.WebhookConfig(), logger)
	a.events = service.NewEventService(db, clk, logger)
	a.editorial = service.NewEditorialService(db, clk, logger, service.Options{
		StorageTimeout: cfg.StorageTimeout,
		Slots:          a.promotions,
		Notifier:       a.webhooks,
	})

	var locker scheduler.Locker = scheduler.NoopLocker{}
	if cfg.SchedulerLockPath != "" {
		locker = scheduler.NewFileLocker(cfg.SchedulerLockPath)
	}
	a.executor = scheduler.New(db, cfg.SchedulerConfig(), scheduler.Deps{
		Clock:    clk,
		Locker:   locker,
		Slots:    a.promotions,
		Notifier: a.webhooks,
		Events:   a.events,
	}, logger)

	return a, nil
}

// start launches the background workers needed by every command.
func (a *app) start(ctx context.Context) {
	a.webhooks.Start(ctx)
}

// close stops the components in reverse order of creation.
func (a *app) close() {
	a.executor.Stop()
	a.webhooks.Stop()
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("error closing cache", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database connection", "error", err)
	}
}
