package ui

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Escape sequences that contribute zero display width: SGR color codes and
// OSC-8 hyperlink wrappers.
var (
	ansiSGRPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	osc8Pattern    = regexp.MustCompile(`\x1b\]8;;[^\x1b]*\x1b\\|\x1b\]8;;\x1b\\`)
)

// StripAnsi removes ANSI escape codes from a string.
func StripAnsi(input string) string {
	result := osc8Pattern.ReplaceAllString(input, "")
	return ansiSGRPattern.ReplaceAllString(result, "")
}

// VisibleWidth returns the display width of a string, counting runes and
// ignoring escape codes.
func VisibleWidth(input string) int {
	return utf8.RuneCountInString(StripAnsi(input))
}

// PadRight pads a string with trailing spaces to a minimum visible width.
func PadRight(input string, width int) string {
	visible := VisibleWidth(input)
	if visible >= width {
		return input
	}
	return input + spaces(width-visible)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}
