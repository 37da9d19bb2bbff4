package state_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crucible/internal/services"
	"crucible/internal/state"
)

func TestMatrixUnitsOrdering(t *testing.T) {
	m := state.Matrix{
		Scenarios:     []string{"s1", "s2"},
		Constitutions: []string{"c1", "c2"},
		Models:        []string{"m1", "m2"},
	}
	units, err := m.Units()
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	var ids []string
	for i, unit := range units {
		if unit.Ordinal != i+1 {
			t.Fatalf("unit %s ordinal = %d, want %d", unit.TestID, unit.Ordinal, i+1)
		}
		ids = append(ids, unit.TestID)
	}
	want := []string{
		"s1_c1_m1", "s1_c1_m2", "s1_c2_m1", "s1_c2_m2",
		"s2_c1_m1", "s2_c1_m2", "s2_c2_m1", "s2_c2_m2",
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("unit order mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrixRejectsCollidingTestIDs(t *testing.T) {
	m := state.Matrix{
		Scenarios:     []string{"a_b", "a"},
		Constitutions: []string{"c", "b_c"},
		Models:        []string{"m"},
	}
	_, err := m.Units()
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMatrixRejectsIDsSharingAnArtifactName(t *testing.T) {
	m := state.Matrix{
		Scenarios:     []string{"s"},
		Constitutions: []string{"c"},
		Models:        []string{"org/m", "org-m"},
	}
	_, err := m.Units()
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMatrixRejectsEmptyDimension(t *testing.T) {
	m := state.Matrix{Scenarios: []string{"s1"}, Models: []string{"m1"}}
	if _, err := m.Units(); err == nil {
		t.Fatal("expected error for empty constitutions")
	}
}

func TestMatrixFingerprint(t *testing.T) {
	base := state.Matrix{Scenarios: []string{"s1"}, Constitutions: []string{"c1"}, Models: []string{"m1"}, EvaluatorModel: "m1"}
	same := base
	same.Name = "renamed"
	if base.Fingerprint() != same.Fingerprint() {
		t.Fatal("fingerprint should ignore the experiment name")
	}
	other := base
	other.Models = []string{"m1", "m2"}
	if base.Fingerprint() == other.Fingerprint() {
		t.Fatal("fingerprint should change with the model list")
	}
	evaluator := base
	evaluator.EvaluatorModel = "m2"
	if base.Fingerprint() == evaluator.Fingerprint() {
		t.Fatal("fingerprint should change with the evaluator")
	}
}
