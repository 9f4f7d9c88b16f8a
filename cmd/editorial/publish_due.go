// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishDueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-due",
		Short: "Publish every scheduled item that is due, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			a.start(cmd.Context())

			res, err := a.executor.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("publish scan: %w", err)
			}

			out := cmd.OutOrStdout()
			if res.Standby {
				_, _ = fmt.Fprintln(out, "Another executor holds the scheduler lock; nothing done.")
				return nil
			}
			_, _ = fmt.Fprintf(out, "due: %d, published: %d, skipped: %d, failed: %d, history pending: %d\n",
				res.Due, res.Published, res.Skipped, res.Failed, res.HistoryPending)
			if res.Failed > 0 {
				return fmt.Errorf("%d item(s) failed to publish", res.Failed)
			}
			return nil
		},
	}
}
