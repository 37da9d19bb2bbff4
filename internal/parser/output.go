package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MissingSentinel marks an expected field that could not be recovered.
const MissingSentinel = "[[MISSING]]"

// Status classifies a parse outcome.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusManualReview   Status = "manual_review"
)

// Strategy names recorded on Output.Strategy.
const (
	StrategyDirect       = "direct"
	StrategySanitized    = "sanitized"
	StrategyExtraction   = "extraction"
	StrategyManualReview = "manual_review"
)

// Schema lists the top-level fields a layer expects.
type Schema struct {
	Fields []string
}

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// Output is the parse result. Status selects the variant:
// success carries Fields, partial_success carries Fields and Missing,
// manual_review carries RawText with every field set to MissingSentinel.
type Output struct {
	Status   Status         `json:"status"`
	Strategy string         `json:"strategy"`
	Fields   map[string]any `json:"fields"`
	Missing  []string       `json:"missing,omitempty"`
	RawText  string         `json:"raw_text,omitempty"`
	Attempts []Attempt      `json:"attempts"`
}

// ManualReview reports whether the outcome needs a human to read the raw text.
func (o Output) ManualReview() bool {
	return o.Status == StatusManualReview
}

// Clean reports a decode with every expected field present.
func (o Output) Clean() bool {
	return o.Status == StatusSuccess
}

// Text renders a field for inclusion in a downstream prompt. Strings are
// returned as-is, other values as compact JSON, absent fields as the sentinel.
func (o Output) Text(field string) string {
	value, ok := o.Fields[field]
	if !ok || value == nil {
		return MissingSentinel
	}
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// Summary renders all recovered fields as indented JSON, or the raw text
// when nothing was recovered.
func (o Output) Summary() string {
	if o.Status == StatusManualReview {
		return strings.TrimSpace(o.RawText)
	}
	data, err := json.MarshalIndent(o.Fields, "", "  ")
	if err != nil {
		return fmt.Sprint(o.Fields)
	}
	return string(data)
}
