// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textSanitizer strips every HTML element and attribute.
var textSanitizer = bluemonday.StrictPolicy()

// maxNotesLength caps free-text notes stored with workflow history.
const maxNotesLength = 4000

// SanitizeText removes markup from user-supplied free text, trims it and
// caps its length. Entities produced by the sanitizer are decoded back so the
// stored value is plain text.
func SanitizeText(s string) string {
	clean := html.UnescapeString(textSanitizer.Sanitize(s))
	clean = strings.TrimSpace(clean)
	if r := []rune(clean); len(r) > maxNotesLength {
		clean = string(r[:maxNotesLength])
	}
	return clean
}
