// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olegiv/ocms-editorial/internal/logging"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg, logging.New(cmd.ErrOrStderr(), cfg.SlogLevel(), nil))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", cfg.DBDriver)
			return nil
		},
	}
}
