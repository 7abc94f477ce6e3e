// internal/util/util.go
package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// SingleLine collapses every run of whitespace, newlines included, into a
// single space.
func SingleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Clip flattens text onto one line and truncates it to maxRunes.
func Clip(text string, maxRunes int) string {
	return TruncateRunes(SingleLine(text), maxRunes)
}

// FitCell shortens text so it fits a column of the given width, leaving one
// column of padding.
func FitCell(text string, width int) string {
	if utf8.RuneCountInString(text) <= width-1 {
		return text
	}
	return TruncateRunes(text, width-2)
}
