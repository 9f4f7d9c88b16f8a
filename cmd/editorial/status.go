// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/olegiv/ocms-editorial/internal/model"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many content items are in each workflow status",
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

			counts, err := a.editorial.CountByStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("counting content: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderStatusCounts(counts))
			return nil
		},
	}
}

func renderStatusCounts(counts map[model.Status]int64) string {
	rows := make([][]string, 0, len(model.AllStatuses)+1)
	var total int64
	for _, s := range model.AllStatuses {
		rows = append(rows, []string{string(s), strconv.FormatInt(counts[s], 10)})
		total += counts[s]
	}
	rows = append(rows, []string{"total", strconv.FormatInt(total, 10)})
	return renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight})
}
