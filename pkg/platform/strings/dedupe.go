// Package strings cleans string lists read from configuration.
package strings

import (
	"slices"
	"strings"
)

// Compact trims every value and drops blanks and repeats, keeping the first
// occurrence. A nil or empty input is returned unchanged.
func Compact(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
