// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/olegiv/ocms-editorial/internal/history"
	"github.com/olegiv/ocms-editorial/internal/model"
	"github.com/olegiv/ocms-editorial/internal/service"
)

// maxNotesWidth truncates notes in the table view.
const maxNotesWidth = 48

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <content-id>",
		Short: "Show and verify the workflow history of a content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			v, err := a.editorial.VerifyHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}

			_, _ = fmt.Fprintln(out, renderHistory(v.Entries))
			_, _ = fmt.Fprintln(out, pathLine(v.Entries))
			_, _ = fmt.Fprintln(out, verificationLine(v))
			if !v.Valid {
				return fmt.Errorf("history of %s is inconsistent", v.ContentID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verification result as JSON")
	return cmd
}

func renderHistory(entries []model.WorkflowHistoryEntry) string {
	headers := []string{"#", "Timestamp", "From", "To", "Changed By", "Notes"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.Seq, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.FromStatus),
			string(e.ToStatus),
			e.ChangedBy,
			truncate(e.Notes, maxNotesWidth),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight})
}

// pathLine renders the statuses the recorded entries walk through.
func pathLine(entries []model.WorkflowHistoryEntry) string {
	path := history.Replay(entries)
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = string(s)
	}
	return "Path: " + strings.Join(parts, " -> ")
}

func verificationLine(v service.Verification) string {
	if v.Valid {
		return fmt.Sprintf("History consistent: %d entries, current status %s.", len(v.Entries), v.Status)
	}
	return fmt.Sprintf("History INCONSISTENT at entry %d: %s", v.Problem.Index, v.Problem.Reason)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
