package ui

import (
	"fmt"
	"sort"
	"strings"
)

// RenderSimpleTable renders an aligned key-value listing, sorted by key so
// repeated runs print the same layout.
func RenderSimpleTable(data map[string]string) string {
	keys := make([]string, 0, len(data))
	maxKey := 0
	for k := range data {
		keys = append(keys, k)
		if len(k) > maxKey {
			maxKey = len(k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			Muted(PadRight(k+":", maxKey+1)),
			Subtle(data[k])))
	}
	return strings.Join(lines, "\n")
}
