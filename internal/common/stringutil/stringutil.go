// Package stringutil provides common string utility functions.
package stringutil

import (
	"strings"
	"unicode"
)

// Slugify derives a hyphenated identifier from the first maxWords words of s.
// Words are lowercased and stripped of non-alphanumeric runes; empty words are
// dropped. Returns "" when nothing survives.
func Slugify(s string, maxWords int) string {
	fields := strings.Fields(s)
	if maxWords > 0 && len(fields) > maxWords {
		fields = fields[:maxWords]
	}

	var words []string
	for _, f := range fields {
		var b strings.Builder
		for _, r := range strings.ToLower(f) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			words = append(words, b.String())
		}
	}
	return strings.Join(words, "-")
}

// TruncateString truncates a string to a maximum length.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TruncateStringWithEllipsis truncates a string to a maximum length and adds "..." suffix.
func TruncateStringWithEllipsis(s string, maxLen int) string {
	if maxLen < 4 {
		return TruncateString(s, maxLen)
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
