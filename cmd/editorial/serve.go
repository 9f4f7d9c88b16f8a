// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/olegiv/ocms-editorial/internal/handler/api"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled publish executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()
			a.start(runCtx)

			executor := a.executor
			if cfg.SchedulerEnabled {
				if err := executor.Start(); err != nil {
					return fmt.Errorf("starting scheduler: %w", err)
				}
			} else {
				a.logger.Info("scheduler disabled")
				executor = nil
			}

			h := api.NewHandler(api.Deps{
				DB:         a.db,
				Editorial:  a.editorial,
				Promotions: a.promotions,
				Executor:   executor,
				Events:     a.events,
				Version:    buildInfo(),
			}, a.logger)

			srv := &http.Server{
				Addr: cfg.ServerAddr(),
				Handler: h.Router(api.RouterConfig{
					APIToken:       cfg.APIToken,
					RequestTimeout: cfg.RequestTimeout,
					IsDevelopment:  cfg.IsDevelopment(),
					RateLimit:      cfg.APIRateLimit,
					RateBurst:      cfg.APIRateBurst,
				}),
				ReadTimeout:       15 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
				IdleTimeout:       60 * time.Second,
				MaxHeaderBytes:    1 << 20,
			}

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				a.logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "version", buildInfo().Version)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				return nil
			})

			if err := g.Wait(); err != nil {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
}
