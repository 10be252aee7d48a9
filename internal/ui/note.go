package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Note displays a boxed message. style colors the title when the terminal
// supports it; pass nil for an unstyled title.
func Note(message, title string, style func(string, ...interface{}) string) {
	wrapped := WrapNoteMessage(message, 80)
	lines := strings.Split(wrapped, "\n")

	fmt.Println()

	maxWidth := 0
	for _, line := range lines {
		if w := VisibleWidth(line); w > maxWidth {
			maxWidth = w
		}
	}
	boxWidth := maxWidth + 4

	if title != "" {
		styledTitle := title
		if style != nil && IsRich() {
			styledTitle = style(title)
		}
		fmt.Printf("%s%s %s %s%s\n",
			Muted(boxTopLeft),
			Muted(strings.Repeat(boxHorizontal, 2)),
			styledTitle,
			Muted(strings.Repeat(boxHorizontal, boxWidth-4-VisibleWidth(title))),
			Muted(boxTopRight))
	} else {
		fmt.Println(Muted(boxTopLeft + strings.Repeat(boxHorizontal, boxWidth) + boxTopRight))
	}

	for _, line := range lines {
		padding := boxWidth - VisibleWidth(line) - 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s %s%s %s\n",
			Muted(boxVertical),
			line,
			spaces(padding),
			Muted(boxVertical))
	}

	fmt.Println(Muted(boxBottomLeft + strings.Repeat(boxHorizontal, boxWidth) + boxBottomRight))
	fmt.Println()
}

// WrapNoteMessage wraps text to fit within the terminal width, capped at
// maxWidth columns.
func WrapNoteMessage(message string, maxWidth int) string {
	columns := 80
	if term, ok := os.LookupEnv("COLUMNS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(term)); err == nil && n > 0 {
			columns = n
		}
	}

	width := columns - 10
	if width > maxWidth {
		width = maxWidth
	}
	if width < 40 {
		width = 40
	}

	var out []string
	for _, line := range strings.Split(message, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, maxWidth int) []string {
	if strings.TrimSpace(line) == "" {
		return []string{line}
	}
	words := strings.Fields(line)

	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if VisibleWidth(candidate) <= maxWidth {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// InfoNote displays an info-styled note.
func InfoNote(message string) {
	Note(message, "ℹ Info", Info)
}

// WarningNote displays a warning-styled note.
func WarningNote(message string) {
	Note(message, "⚠ Warning", Warn)
}

// ErrorNote displays an error-styled note.
func ErrorNote(message string) {
	Note(message, "✗ Error", Error)
}

// SuccessNote displays a success-styled note.
func SuccessNote(message string) {
	Note(message, "✓ Success", Success)
}
