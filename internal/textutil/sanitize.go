package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes an identifier usable as a single path component.
// Path separators and colons become dashes, wildcard and quoting characters
// are dropped, and surrounding whitespace is trimmed.
func SanitizeFileName(name string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, strings.TrimSpace(name)))
}

// SanitizeToken lowercases value and replaces everything except ASCII
// letters, digits, dashes and underscores with underscores. Experiment names
// pass through it to become directory names. Empty results become "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return unicode.ToLower(r)
		case r == '-' || r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
