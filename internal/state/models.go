package state

import (
	"time"

	"crucible/internal/gateway"
	"crucible/internal/parser"
)

// Status represents the lifecycle of a test unit.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed}

// ParseStatus validates a user-provided status name.
func ParseStatus(value string) (Status, bool) {
	for _, status := range AllStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no further transitions happen without a requeue.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExperimentStatus tracks the run as a whole.
type ExperimentStatus string

const (
	ExperimentRunning     ExperimentStatus = "running"
	ExperimentCompleted   ExperimentStatus = "completed"
	ExperimentInterrupted ExperimentStatus = "interrupted"
)

// Unit is one (scenario, constitution, model) instance.
type Unit struct {
	TestID         string     `json:"test_id"`
	ScenarioID     string     `json:"scenario_id"`
	ConstitutionID string     `json:"constitution_id"`
	ModelID        string     `json:"model_id"`
	Ordinal        int        `json:"ordinal"`
	Status         Status     `json:"status"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error,omitempty"`
	FailureKind    string     `json:"failure_kind,omitempty"`
	ManualReview   bool       `json:"manual_review"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Experiment is the persisted identity of a run.
type Experiment struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Fingerprint string           `json:"fingerprint"`
	Matrix      Matrix           `json:"matrix"`
	Status      ExperimentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// LayerResult is the durable record of one parsed layer.
type LayerResult struct {
	Layer        int              `json:"layer"`
	Name         string           `json:"name"`
	Model        string           `json:"model"`
	Provider     string           `json:"provider,omitempty"`
	ParseStatus  parser.Status    `json:"parse_status"`
	Strategy     string           `json:"strategy"`
	Fields       map[string]any   `json:"fields"`
	Missing      []string         `json:"missing,omitempty"`
	RawText      string           `json:"raw_text,omitempty"`
	TokenBudget  int              `json:"token_budget"`
	Calls        int              `json:"calls"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        gateway.Usage    `json:"usage"`
	Duration     time.Duration    `json:"duration_ns"`
	RawRecords   []string         `json:"raw_records,omitempty"`
	Attempts     []parser.Attempt `json:"parse_attempts,omitempty"`
}

// Output rebuilds the parse outcome so later layers can consume it.
func (l LayerResult) Output() parser.Output {
	return parser.Output{
		Status:   l.ParseStatus,
		Strategy: l.Strategy,
		Fields:   l.Fields,
		Missing:  l.Missing,
		RawText:  l.RawText,
		Attempts: l.Attempts,
	}
}

// ManualReview reports whether this layer fell back to manual review.
func (l LayerResult) ManualReview() bool {
	return l.ParseStatus == parser.StatusManualReview
}

// TestResult is written once when a unit completes.
type TestResult struct {
	TestID         string        `json:"test_id"`
	ExperimentID   string        `json:"experiment_id"`
	ScenarioID     string        `json:"scenario_id"`
	ConstitutionID string        `json:"constitution_id"`
	ModelID        string        `json:"model_id"`
	EvaluatorModel string        `json:"evaluator_model"`
	Layers         []LayerResult `json:"layers"`
	ManualReview   bool          `json:"manual_review"`
	RetryCount     int           `json:"retry_count"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// ManualReviewLayers lists the layers that need a human to read raw text.
func (r TestResult) ManualReviewLayers() []string {
	var names []string
	for _, layer := range r.Layers {
		if layer.ManualReview() {
			names = append(names, layer.Name)
		}
	}
	return names
}

// ParseStatusCallFailed tags a raw record for a call that returned an error.
const ParseStatusCallFailed = "call_failed"

// RawRecord captures one gateway call, written whatever happens next.
type RawRecord struct {
	TestID       string        `json:"test_id"`
	Layer        int           `json:"layer"`
	Sequence     int           `json:"sequence"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	RequestID    string        `json:"request_id,omitempty"`
	Text         string        `json:"text"`
	MaxTokens    int           `json:"max_tokens"`
	Temperature  float64       `json:"temperature"`
	TimeoutSecs  int           `json:"timeout_seconds"`
	FinishReason string        `json:"finish_reason,omitempty"`
	ProviderStop string        `json:"provider_finish_reason,omitempty"`
	Usage        gateway.Usage `json:"usage"`
	ParseStatus  string        `json:"parse_status"`
	Strategy     string        `json:"strategy,omitempty"`
	Truncated    bool          `json:"truncated"`
	TruncReasons []string      `json:"truncation_reasons,omitempty"`
	Error        string        `json:"error,omitempty"`
	Latency      time.Duration `json:"latency_ns"`
	RecordedAt   time.Time     `json:"recorded_at"`
}

// Counts is derived from unit rows.
type Counts struct {
	Total          int            `json:"total"`
	Pending        int            `json:"pending"`
	InProgress     int            `json:"in_progress"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	ManualReview   int            `json:"manual_review"`
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty"`
}

// Remaining reports units that a pass would still pick up or that are running.
func (c Counts) Remaining() int {
	return c.Pending + c.InProgress
}
