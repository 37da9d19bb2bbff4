package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ArrayField holds a top-level JSON array so array payloads still decode to
// a field map.
const ArrayField = "items"

var (
	errEmpty        = errors.New("empty payload")
	errNotObject    = errors.New("payload is not a JSON object or array")
	errNoOpener     = errors.New("no '{' or '[' found")
	errUnbalanced   = errors.New("unbalanced JSON span")
	errTrailingData = errors.New("trailing data after JSON value")
)

// Strategy turns raw text into a field map or reports why it could not.
type Strategy interface {
	Name() string
	Extract(raw string) (map[string]any, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	StrategyName string
	Fn           func(raw string) (map[string]any, error)
}

// Name implements Strategy.
func (s StrategyFunc) Name() string { return s.StrategyName }

// Extract implements Strategy.
func (s StrategyFunc) Extract(raw string) (map[string]any, error) { return s.Fn(raw) }

// DefaultStrategies returns direct, sanitized and extraction in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		StrategyFunc{StrategyName: StrategyDirect, Fn: Direct},
		StrategyFunc{StrategyName: StrategySanitized, Fn: Sanitized},
		StrategyFunc{StrategyName: StrategyExtraction, Fn: Extraction},
	}
}

// Direct strips a fenced code block that wraps the whole payload and decodes
// the remainder.
func Direct(raw string) (map[string]any, error) {
	return decodeFields(StripCodeFence(raw))
}

// Sanitized removes parser-breaking bytes, escapes raw control characters
// inside string literals, then decodes like Direct.
func Sanitized(raw string) (map[string]any, error) {
	return decodeFields(StripCodeFence(escapeStringControls(Sanitize(raw))))
}

// Extraction decodes the first top-level balanced {...} or [...] span.
func Extraction(raw string) (map[string]any, error) {
	cleaned := escapeStringControls(Sanitize(raw))
	span, err := FirstBalancedSpan(cleaned)
	if err != nil {
		return nil, err
	}
	return decodeFields(span)
}

// StripCodeFence removes a ``` wrapper (with optional language tag) when the
// trimmed payload both starts and ends with a fence.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") || len(trimmed) < 6 || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3 : len(trimmed)-3]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || isLanguageTag(tag) {
			body = body[nl+1:]
		}
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// Sanitize drops control characters other than tab/newline/CR, byte order
// marks, zero-width and bidi formatting runes, and invalid UTF-8.
func Sanitize(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if dropRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func dropRune(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u2060', '\u00AD':
		return true
	}
	if r < 0x20 || r == 0x7F || (r >= 0x80 && r < 0xA0) {
		return true
	}
	return unicode.Is(unicode.Bidi_Control, r)
}

// escapeStringControls rewrites raw newlines, tabs and carriage returns that
// appear inside JSON string literals as escape sequences.
func escapeStringControls(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c == '\n':
				b.WriteString(`\n`)
				continue
			case c == '\r':
				b.WriteString(`\r`)
				continue
			case c == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// FirstBalancedSpan returns the span from the first '{' or '[' to its matching
// closer, ignoring delimiters inside string literals. Only the first opener is
// considered.
func FirstBalancedSpan(content string) (string, error) {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return "", errNoOpener
	}
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", fmt.Errorf("%w: unexpected %q at offset %d", errUnbalanced, c, i)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: %d unclosed delimiter(s)", errUnbalanced, len(stack))
}

func decodeFields(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errEmpty
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingData
	}
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case []any:
		return map[string]any{ArrayField: v}, nil
	default:
		return nil, errNotObject
	}
}
