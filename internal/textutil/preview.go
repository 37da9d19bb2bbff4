package textutil

import (
	"strings"
	"unicode/utf8"
)

// Preview collapses whitespace and cuts value to at most limit runes,
// appending an ellipsis when something was dropped.
func Preview(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "…"
}
