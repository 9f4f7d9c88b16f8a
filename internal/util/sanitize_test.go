// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Needs a second source", "Needs a second source"},
		{"trimmed", "  ok  ", "ok"},
		{"script removed", `fix intro<script>alert(1)</script>`, "fix intro"},
		{"tags stripped", `<b>bold</b> claim`, "bold claim"},
		{"ampersand kept", "Q&A section", "Q&A section"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_Truncates(t *testing.T) {
	got := SanitizeText(strings.Repeat("é", maxNotesLength+10))
	if n := len([]rune(got)); n != maxNotesLength {
		t.Errorf("length = %d, want %d", n, maxNotesLength)
	}
}
