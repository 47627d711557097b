// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strconv"
	"unicode/utf8"
)

// Truncate shortens a string to maxLen runes with ellipsis.
// Uses rune count for proper UTF-8 handling.
// If maxLen < 4, returns the string unchanged (no room for ellipsis).
func Truncate(s string, maxLen int) string {
	if maxLen < 4 {
		return s
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// Plural returns the singular or the plural form depending on n.
// Plural form is singular+"s" when plural is empty.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	if plural == "" {
		return singular + "s"
	}
	return plural
}

// PadLeft left-pads the decimal representation of n with spaces to the
// given width. Used for aligned report columns.
func PadLeft(n, width int) string {
	s := strconv.Itoa(n)
	for utf8.RuneCountInString(s) < width {
		s = " " + s
	}
	return s
}
