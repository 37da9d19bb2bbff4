package orchestrator

import (
	"time"

	"crucible/internal/state"
)

// Summary reports a run by terminal status.
type Summary struct {
	ExperimentID   string         `json:"experiment_id"`
	Name           string         `json:"name"`
	RunID          string         `json:"run_id"`
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	Pending        int            `json:"pending"`
	InProgress     int            `json:"in_progress"`
	ManualReview   int            `json:"manual_review"`
	FailuresByKind map[string]int `json:"failures_by_kind,omitempty"`
	Passes         int            `json:"passes"`
	Batches        int            `json:"batches"`
	Executed       int            `json:"executed"`
	Interrupted    bool           `json:"interrupted"`
	Duration       time.Duration  `json:"duration_ns"`
}

func (s *Summary) apply(counts state.Counts) {
	s.Total = counts.Total
	s.Completed = counts.Completed
	s.Failed = counts.Failed
	s.Pending = counts.Pending
	s.InProgress = counts.InProgress
	s.ManualReview = counts.ManualReview
	s.FailuresByKind = counts.FailuresByKind
}

// Done reports whether no unit is left to run.
func (s Summary) Done() bool {
	return s.Pending == 0 && s.InProgress == 0
}

// Metadata is the experiment.json artifact.
type Metadata struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Fingerprint string                 `json:"fingerprint"`
	RunID       string                 `json:"run_id"`
	Matrix      state.Matrix           `json:"matrix"`
	Status      state.ExperimentStatus `json:"status"`
	Counts      state.Counts           `json:"counts"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}
