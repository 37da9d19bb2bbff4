package testsupport

import (
	"testing"

	"crucible/internal/config"
	"crucible/internal/state"
)

// Matrix returns the state matrix described by cfg.
func Matrix(cfg *config.Config) state.Matrix {
	return state.Matrix{
		Name:           cfg.Experiment.Name,
		Scenarios:      cfg.Experiment.Scenarios,
		Constitutions:  cfg.Experiment.Constitutions,
		Models:         cfg.Experiment.Models,
		EvaluatorModel: cfg.Experiment.EvaluatorModel,
	}
}

// MustOpenStore opens a state.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.ExperimentDir(), state.Options{MaxRetries: cfg.Experiment.MaxRetries})
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustCreate opens a store and creates the experiment for cfg's matrix.
func MustCreate(t testing.TB, cfg *config.Config) (*state.Store, state.Experiment) {
	t.Helper()

	store := MustOpenStore(t, cfg)
	exp, err := store.Create(t.Context(), Matrix(cfg))
	if err != nil {
		t.Fatalf("create experiment: %v", err)
	}
	return store, exp
}
