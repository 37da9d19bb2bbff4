package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crucible/internal/logging"
	"crucible/internal/services"
)

var (
	// ErrExperimentExists is returned by Create when the directory already holds an experiment.
	ErrExperimentExists = errors.New("experiment already exists")
	// ErrMatrixMismatch is returned when a stored experiment was built from a different matrix.
	ErrMatrixMismatch = errors.New("experiment matrix mismatch")
)

// Create records a new experiment and one pending row per unit.
func (s *Store) Create(ctx context.Context, matrix Matrix) (Experiment, error) {
	units, err := matrix.Units()
	if err != nil {
		return Experiment{}, err
	}
	existing, err := s.experiment(ctx)
	if err != nil {
		return Experiment{}, err
	}
	if existing != nil {
		return Experiment{}, fmt.Errorf("%w: %s (%s)", ErrExperimentExists, existing.Name, existing.ID)
	}

	matrixJSON, err := json.Marshal(matrix)
	if err != nil {
		return Experiment{}, fmt.Errorf("marshal matrix: %w", err)
	}
	now := s.now()
	exp := Experiment{
		ID:          uuid.NewString(),
		Name:        matrix.Name,
		Fingerprint: matrix.Fingerprint(),
		Matrix:      matrix,
		Status:      ExperimentRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	timestamp := formatTime(now)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO experiment (id, name, fingerprint, matrix_json, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			exp.ID, exp.Name, exp.Fingerprint, string(matrixJSON), exp.Status, timestamp, timestamp,
		); err != nil {
			return fmt.Errorf("insert experiment: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO units (test_id, scenario_id, constitution_id, model_id, ordinal, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare unit insert: %w", err)
		}
		defer stmt.Close()
		for _, unit := range units {
			if _, err := stmt.ExecContext(ctx,
				unit.TestID, unit.ScenarioID, unit.ConstitutionID, unit.ModelID,
				unit.Ordinal, StatusPending, timestamp, timestamp,
			); err != nil {
				return fmt.Errorf("insert unit %s: %w", unit.TestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Experiment{}, err
	}
	// Results left by an earlier database are adopted, not re-run.
	report, err := s.Reconcile(ctx)
	if err != nil {
		return Experiment{}, err
	}

	s.logger.Info("experiment created",
		logging.String(logging.FieldExperimentID, exp.ID),
		logging.String("name", exp.Name),
		logging.Int("units", len(units)),
		logging.String("fingerprint", exp.Fingerprint),
		logging.Int("adopted_results", report.RecoveredCompleted),
		logging.String(logging.FieldEventType, "experiment_created"),
	)
	return exp, nil
}

// Load returns the stored experiment after reconciling unit rows against the
// artifacts on disk. It returns nil when the directory holds no experiment.
func (s *Store) Load(ctx context.Context) (*Experiment, error) {
	exp, err := s.experiment(ctx)
	if err != nil || exp == nil {
		return exp, err
	}
	report, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if report.Changed() {
		logging.WarnWithContext(s.logger, "state reconciled against artifacts", "state_reconciled",
			logging.String(logging.FieldExperimentID, exp.ID),
			logging.Int("reset_in_progress", report.ResetInProgress),
			logging.Int("recovered_completed", report.RecoveredCompleted),
			logging.Int("demoted_completed", report.DemotedCompleted),
			logging.String(logging.FieldErrorHint, "units interrupted mid-run are re-executed from their last checkpoint"),
			logging.String(logging.FieldImpact, "affected units run again"),
		)
	}
	return exp, nil
}

// Resume loads the stored experiment and verifies it was built from matrix.
func (s *Store) Resume(ctx context.Context, matrix Matrix) (*Experiment, error) {
	exp, err := s.Load(ctx)
	if err != nil || exp == nil {
		return exp, err
	}
	if want := matrix.Fingerprint(); exp.Fingerprint != want {
		return nil, services.Wrap(
			services.ErrConfiguration,
			"state",
			"resume experiment",
			fmt.Sprintf("stored fingerprint %s differs from configured %s; use a new experiment name to change the matrix", exp.Fingerprint, want),
			ErrMatrixMismatch,
		)
	}
	return exp, nil
}

// SetExperimentStatus records the run-level status.
func (s *Store) SetExperimentStatus(ctx context.Context, status ExperimentStatus) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE experiment SET status = ?, updated_at = ?`,
		status, formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("update experiment status: %w", err)
	}
	return nil
}

// Experiment returns the stored experiment without reconciling, or nil when
// none exists. Safe to call while another process runs the experiment.
func (s *Store) Experiment(ctx context.Context) (*Experiment, error) {
	return s.experiment(ctx)
}

func (s *Store) experiment(ctx context.Context) (*Experiment, error) {
	ctx = ensureContext(ctx)
	var (
		exp        Experiment
		matrixJSON string
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, fingerprint, matrix_json, status, created_at, updated_at FROM experiment LIMIT 1`,
	).Scan(&exp.ID, &exp.Name, &exp.Fingerprint, &matrixJSON, &statusStr, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read experiment: %w", err)
	}
	if err := json.Unmarshal([]byte(matrixJSON), &exp.Matrix); err != nil {
		return nil, fmt.Errorf("decode experiment matrix: %w", err)
	}
	exp.Status = ExperimentStatus(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		exp.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		exp.UpdatedAt = updated
	}
	return &exp, nil
}
