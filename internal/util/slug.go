// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util holds small text helpers shared by the editorial packages:
// slug derivation and free-text sanitization.
package util

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength bounds generated slugs, suffix included.
const MaxSlugLength = 96

// foldings covers letters that do not decompose into base + combining mark.
var foldings = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o",
	"ł", "l", "Ł", "l",
	"đ", "d", "Đ", "d",
	"&", " and ",
)

// Slugify derives a URL slug from a headline: accents are folded to ASCII,
// every run of other characters becomes one hyphen, and the result is cut
// at a word boundary so it fits MaxSlugLength.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldings.Replace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return truncateSlug(b.String(), MaxSlugLength)
}

// SlugWithSuffix returns base with "-n" appended, shortening base so the
// result still fits MaxSlugLength.
func SlugWithSuffix(base string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	return truncateSlug(base, MaxSlugLength-len(suffix)) + suffix
}

// truncateSlug cuts s to at most max bytes, preferring the last hyphen.
func truncateSlug(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, '-'); i > max/2 {
		cut = cut[:i]
	}
	return strings.Trim(cut, "-")
}

// IsValidSlug reports whether s is a lowercase ASCII slug with single
// hyphens between words.
func IsValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' || strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}
