package truncation_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crucible/internal/parser"
	"crucible/internal/truncation"
)

func defaultLadder(t *testing.T) truncation.Ladder {
	t.Helper()
	ladder, err := truncation.NewLadder([]int{8000, 12000, 16000, 20000, 30000})
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}
	return ladder
}

func TestNewLadderValidates(t *testing.T) {
	for _, rungs := range [][]int{nil, {0}, {10, 10}, {20, 10}} {
		if _, err := truncation.NewLadder(rungs); err == nil {
			t.Fatalf("expected error for %v", rungs)
		}
	}
}

func TestLadderNext(t *testing.T) {
	ladder := defaultLadder(t)
	tests := []struct {
		attempted int
		want      int
		ok        bool
	}{
		{0, 8000, true},
		{8000, 12000, true},
		{9000, 12000, true},
		{20000, 30000, true},
		{30000, 0, false},
		{50000, 0, false},
	}
	for _, tt := range tests {
		got, ok := ladder.Next(tt.attempted)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Next(%d) = (%d, %v), want (%d, %v)", tt.attempted, got, ok, tt.want, tt.ok)
		}
	}
	if ladder.Max() != 30000 {
		t.Fatalf("unexpected max %d", ladder.Max())
	}
}

func TestLadderWalkFromBaselineTakesFiveAttempts(t *testing.T) {
	ladder := defaultLadder(t)
	d := truncation.NewDetector(ladder, 0.95)
	budget := 8000
	attempts := 0
	for {
		attempts++
		v := d.Assess(truncation.Input{
			Text:               `{"facts": "cut`,
			FinishReason:       "length",
			AttemptedMaxTokens: budget,
			ParseStatus:        parser.StatusManualReview,
			ExpectJSON:         true,
		})
		if !v.Truncated {
			t.Fatal("expected truncation")
		}
		if v.Exhausted {
			break
		}
		budget = v.NextBudget
	}
	if attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", attempts)
	}
}

func TestAssessSignals(t *testing.T) {
	d := truncation.NewDetector(defaultLadder(t), 0)
	tests := []struct {
		name    string
		in      truncation.Input
		reasons []truncation.Reason
	}{
		{
			name:    "finish length alone",
			in:      truncation.Input{Text: `{"a":1}`, FinishReason: "length", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusSuccess, ExpectJSON: true},
			reasons: []truncation.Reason{truncation.ReasonFinishLength},
		},
		{
			name:    "clean parse ignores structure",
			in:      truncation.Input{Text: `{"a":1}`, FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusSuccess, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "unclosed brace",
			in:      truncation.Input{Text: `{"a": [1, 2`, FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusManualReview, ExpectJSON: true},
			reasons: []truncation.Reason{truncation.ReasonStructural},
		},
		{
			name:    "prose ending with period",
			in:      truncation.Input{Text: "I will not answer in JSON.", FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusManualReview, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "near limit with parse failure",
			in:      truncation.Input{Text: "irrelevant.", FinishReason: "stop", AttemptedMaxTokens: 1000, OutputTokens: 960, ParseStatus: parser.StatusManualReview, ExpectJSON: true},
			reasons: []truncation.Reason{truncation.ReasonNearLimit},
		},
		{
			name:    "near limit with recovered parse",
			in:      truncation.Input{Text: `{"a":1}`, FinishReason: "stop", AttemptedMaxTokens: 1000, OutputTokens: 960, ParseStatus: parser.StatusPartialSuccess, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "trailing control characters after fence",
			in:      truncation.Input{Text: "```json\n{\"a\": 1}\n```\x00\x01", FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusManualReview, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "unpunctuated prose",
			in:      truncation.Input{Text: "I would rather not answer in JSON", FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusManualReview, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "json followed by unpunctuated prose",
			in:      truncation.Input{Text: `{"a": 1} hope this helps`, FinishReason: "stop", AttemptedMaxTokens: 8000, ParseStatus: parser.StatusSuccess, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "near limit but clean parse",
			in:      truncation.Input{Text: `{"a":1}`, FinishReason: "stop", AttemptedMaxTokens: 1000, OutputTokens: 999, ParseStatus: parser.StatusSuccess, ExpectJSON: true},
			reasons: nil,
		},
		{
			name:    "estimated tokens",
			in:      truncation.Input{Text: strings.Repeat("x", 400) + ".", FinishReason: "stop", AttemptedMaxTokens: 100, ParseStatus: parser.StatusManualReview, ExpectJSON: false},
			reasons: []truncation.Reason{truncation.ReasonNearLimit},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.Assess(tt.in)
			if diff := cmp.Diff(tt.reasons, v.Reasons); diff != "" {
				t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
			}
			if v.Truncated != (len(tt.reasons) > 0) {
				t.Fatalf("truncated = %v with reasons %v", v.Truncated, v.Reasons)
			}
		})
	}
}

func TestAssessExhaustedAtTopRung(t *testing.T) {
	d := truncation.NewDetector(defaultLadder(t), 0.95)
	v := d.Assess(truncation.Input{Text: "{", FinishReason: "length", AttemptedMaxTokens: 30000, ParseStatus: parser.StatusManualReview, ExpectJSON: true})
	if !v.Truncated || !v.Exhausted || v.NextBudget != 0 {
		t.Fatalf("expected exhausted verdict, got %+v", v)
	}
}

func TestStructural(t *testing.T) {
	tests := []struct {
		text       string
		incomplete bool
	}{
		{"", true},
		{`{"a": "b"}`, false},
		{`{"a": "b`, true},
		{`{"a": "}"`, true},
		{`["x", "y"]`, false},
		{"The answer is", false},
		{`He said "stop`, false},
		{`{"a": 1} and then the model kept going`, true},
		{"Done!", false},
	}
	for _, tt := range tests {
		got, _ := truncation.Structural(tt.text)
		if got != tt.incomplete {
			t.Errorf("Structural(%q) = %v, want %v", tt.text, got, tt.incomplete)
		}
	}
}
