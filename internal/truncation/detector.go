package truncation

import (
	"strings"

	"crucible/internal/parser"
)

// FinishLength is the normalized finish reason for a budget cut-off.
const FinishLength = "length"

// DefaultNearLimitRatio flags output within 5% of the attempted budget.
const DefaultNearLimitRatio = 0.95

// Reason names a signal that fired.
type Reason string

const (
	ReasonFinishLength Reason = "finish_reason_length"
	ReasonStructural   Reason = "structurally_incomplete"
	ReasonNearLimit    Reason = "near_token_limit"
)

// Input is everything the detector looks at for one call.
type Input struct {
	Text               string
	FinishReason       string
	AttemptedMaxTokens int
	OutputTokens       int
	ParseStatus        parser.Status
	ExpectJSON         bool
}

// Verdict is the detector's decision. NextBudget is set when Truncated and
// the ladder has a higher rung; Exhausted when Truncated and it does not.
type Verdict struct {
	Truncated  bool     `json:"truncated"`
	Reasons    []Reason `json:"reasons,omitempty"`
	Detail     string   `json:"detail,omitempty"`
	NextBudget int      `json:"next_budget,omitempty"`
	Exhausted  bool     `json:"exhausted,omitempty"`
}

// Detector combines the three truncation signals with a ladder.
type Detector struct {
	ladder         Ladder
	nearLimitRatio float64
}

// NewDetector returns a detector. A ratio outside (0,1] uses DefaultNearLimitRatio.
func NewDetector(ladder Ladder, nearLimitRatio float64) *Detector {
	if nearLimitRatio <= 0 || nearLimitRatio > 1 {
		nearLimitRatio = DefaultNearLimitRatio
	}
	return &Detector{ladder: ladder, nearLimitRatio: nearLimitRatio}
}

// Ladder returns the configured ladder.
func (d *Detector) Ladder() Ladder { return d.ladder }

// Assess applies the signals in order. Any one marks the response truncated.
// Only a manual_review parse counts as a parse failure; a payload a recovery
// strategy decoded is complete.
func (d *Detector) Assess(in Input) Verdict {
	var v Verdict
	parseFailed := in.ParseStatus == parser.StatusManualReview

	if strings.EqualFold(strings.TrimSpace(in.FinishReason), FinishLength) {
		v.Reasons = append(v.Reasons, ReasonFinishLength)
	}
	if in.ExpectJSON && parseFailed {
		if incomplete, detail := Structural(parser.Sanitize(in.Text)); incomplete {
			v.Reasons = append(v.Reasons, ReasonStructural)
			v.Detail = detail
		}
	}
	if parseFailed && in.AttemptedMaxTokens > 0 {
		used := in.OutputTokens
		if used <= 0 {
			used = EstimateTokens(in.Text)
		}
		if float64(used) >= d.nearLimitRatio*float64(in.AttemptedMaxTokens) {
			v.Reasons = append(v.Reasons, ReasonNearLimit)
		}
	}

	if len(v.Reasons) == 0 {
		return v
	}
	v.Truncated = true
	if next, ok := d.ladder.Next(in.AttemptedMaxTokens); ok {
		v.NextBudget = next
	} else {
		v.Exhausted = true
	}
	return v
}

// EstimateTokens approximates token usage at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Structural reports whether text that opened a JSON structure looks cut off:
// unbalanced braces or brackets outside strings, an unterminated string, or a
// final character that is neither a closing delimiter nor terminal
// punctuation. Text with no brace or bracket is prose, left to manual review.
func Structural(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true, "empty response"
	}
	if !strings.ContainsAny(trimmed, "{[") {
		return false, ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	if inString {
		return true, "unterminated string"
	}
	if depth > 0 {
		return true, "unclosed brace or bracket"
	}

	last := trimmed[len(trimmed)-1]
	switch last {
	case '}', ']', '"', '`', ')', '.', '!', '?', ';', ':', '*', '\'':
		return false, ""
	}
	if strings.HasSuffix(trimmed, "…") || strings.HasSuffix(trimmed, "。") {
		return false, ""
	}
	return true, "no closing delimiter or terminal punctuation"
}
