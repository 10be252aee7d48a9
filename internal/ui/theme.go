package ui

import (
	"os"
	"strings"

	"github.com/fatih/color"
)

// Styled text helpers wrapping fatih/color, shared by the banner, notes and
// log lines. Respects NO_COLOR; FORCE_COLOR does not enable color when
// fatih/color has disabled it (for example on a non-TTY stdout).

var (
	noColor    = os.Getenv("NO_COLOR") != ""
	forceColor = isForceColor()
)

func isForceColor() bool {
	fc := strings.TrimSpace(os.Getenv("FORCE_COLOR"))
	return fc != "" && fc != "0"
}

// IsRich returns true if the terminal supports colored output.
func IsRich() bool {
	if noColor && !forceColor {
		return false
	}
	return color.NoColor == false
}

// Accent returns primary brand-colored text.
func Accent(format string, a ...interface{}) string {
	return color.New(color.FgHiRed).Sprintf(format, a...)
}

// AccentDim returns muted accent text.
func AccentDim(format string, a ...interface{}) string {
	return color.New(color.FgRed).Sprintf(format, a...)
}

// Heading returns bold accent text for section headers.
func Heading(format string, a ...interface{}) string {
	return color.New(color.FgHiRed, color.Bold).Sprintf(format, a...)
}

// Info returns informational styled text.
func Info(format string, a ...interface{}) string {
	return color.New(color.FgHiYellow).Sprintf(format, a...)
}

// Success returns success-styled text.
func Success(format string, a ...interface{}) string {
	return color.New(color.FgGreen).Sprintf(format, a...)
}

// Warn returns warning-styled text.
func Warn(format string, a ...interface{}) string {
	return color.New(color.FgYellow).Sprintf(format, a...)
}

// Error returns error-styled text.
func Error(format string, a ...interface{}) string {
	return color.New(color.FgRed).Sprintf(format, a...)
}

// Muted returns secondary/hint text.
func Muted(format string, a ...interface{}) string {
	return color.New(color.FgHiBlack).Sprintf(format, a...)
}

// Subtle returns plain foreground text.
func Subtle(format string, a ...interface{}) string {
	return color.New(color.FgWhite).Sprintf(format, a...)
}

// Secondary returns secondary cyan styled text.
func Secondary(format string, a ...interface{}) string {
	return color.New(color.FgCyan).Sprintf(format, a...)
}
