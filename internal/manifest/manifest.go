package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"crucible/internal/state"
)

// Source is the read side of the state store.
type Source interface {
	Experiment(ctx context.Context) (*state.Experiment, error)
	Units(ctx context.Context, statuses ...state.Status) ([]state.Unit, error)
	Counts(ctx context.Context) (state.Counts, error)
	Result(testID string) (*state.TestResult, error)
}

// ErrNoExperiment is returned when the directory holds no experiment yet.
var ErrNoExperiment = errors.New("no experiment in state directory")

// Failure is one unit in the failed state.
type Failure struct {
	TestID     string `json:"test_id"`
	Kind       string `json:"kind"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// Review is a completed unit with at least one layer in manual review.
type Review struct {
	TestID string   `json:"test_id"`
	Layers []string `json:"layers"`
}

// Manifest is the manifest.json artifact.
type Manifest struct {
	ExperimentID   string                 `json:"experiment_id"`
	Name           string                 `json:"name"`
	Fingerprint    string                 `json:"fingerprint"`
	Status         state.ExperimentStatus `json:"status"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Counts         state.Counts           `json:"counts"`
	Completed      []string               `json:"completed"`
	Failed         []Failure              `json:"failed"`
	ManualReview   []Review               `json:"manual_review"`
	Pending        []string               `json:"pending,omitempty"`
	MissingResults []string               `json:"missing_results,omitempty"`
}

// FailuresByKind groups failed test ids by failure kind.
func (m Manifest) FailuresByKind() map[string][]string {
	out := make(map[string][]string, len(m.Failed))
	for _, f := range m.Failed {
		out[f.Kind] = append(out[f.Kind], f.TestID)
	}
	return out
}

// Build assembles a manifest from src. Completed units whose result artifact
// cannot be read are listed under MissingResults rather than failing the build.
func Build(ctx context.Context, src Source, now time.Time) (*Manifest, error) {
	exp, err := src.Experiment(ctx)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, ErrNoExperiment
	}
	counts, err := src.Counts(ctx)
	if err != nil {
		return nil, err
	}
	units, err := src.Units(ctx)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		ExperimentID: exp.ID,
		Name:         exp.Name,
		Fingerprint:  exp.Fingerprint,
		Status:       exp.Status,
		GeneratedAt:  now.UTC(),
		Counts:       counts,
		Completed:    []string{},
		Failed:       []Failure{},
		ManualReview: []Review{},
	}
	for _, unit := range units {
		switch unit.Status {
		case state.StatusCompleted:
			m.Completed = append(m.Completed, unit.TestID)
			if !unit.ManualReview {
				continue
			}
			result, err := src.Result(unit.TestID)
			if err != nil {
				m.MissingResults = append(m.MissingResults, unit.TestID)
				continue
			}
			m.ManualReview = append(m.ManualReview, Review{TestID: unit.TestID, Layers: result.ManualReviewLayers()})
		case state.StatusFailed:
			kind := unit.FailureKind
			if kind == "" {
				kind = "unknown"
			}
			m.Failed = append(m.Failed, Failure{
				TestID:     unit.TestID,
				Kind:       kind,
				RetryCount: unit.RetryCount,
				LastError:  unit.LastError,
			})
		default:
			m.Pending = append(m.Pending, unit.TestID)
		}
	}
	sort.Slice(m.Failed, func(i, j int) bool {
		if m.Failed[i].Kind != m.Failed[j].Kind {
			return m.Failed[i].Kind < m.Failed[j].Kind
		}
		return m.Failed[i].TestID < m.Failed[j].TestID
	})
	return m, nil
}

// Writer persists the manifest artifact.
type Writer interface {
	WriteManifest(v any) error
}

// Write builds the manifest and stores it through w.
func Write(ctx context.Context, src Source, w Writer, now time.Time) (*Manifest, error) {
	m, err := Build(ctx, src, now)
	if err != nil {
		return nil, err
	}
	if err := w.WriteManifest(m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}
