package state

import (
	"context"
	"database/sql"
	"fmt"

	"crucible/internal/logging"
)

// ReconcileReport describes the corrections made by Reconcile.
type ReconcileReport struct {
	ResetInProgress    int `json:"reset_in_progress"`
	RecoveredCompleted int `json:"recovered_completed"`
	DemotedCompleted   int `json:"demoted_completed"`
}

// Changed reports whether any row was corrected.
func (r ReconcileReport) Changed() bool {
	return r.ResetInProgress+r.RecoveredCompleted+r.DemotedCompleted > 0
}

// Reconcile rebuilds unit rows from the result artifacts. A readable result
// marks its unit completed, a completed row without one goes back to pending,
// and anything left in progress by a crash is reset to pending.
func (s *Store) Reconcile(ctx context.Context) (ReconcileReport, error) {
	units, err := s.Units(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	type fix struct {
		unit   Unit
		result *TestResult
	}
	var (
		report ReconcileReport
		fixes  []fix
	)
	for _, unit := range units {
		var result *TestResult
		if s.HasResult(unit.TestID) {
			r, err := s.Result(unit.TestID)
			if err != nil {
				logging.WarnWithContext(s.logger, "unreadable result artifact ignored", "result_unreadable",
					logging.String(logging.FieldTestID, unit.TestID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "the unit will run again and overwrite the artifact"),
				)
			} else {
				result = r
			}
		}
		switch {
		case result != nil && unit.Status != StatusCompleted:
			report.RecoveredCompleted++
			fixes = append(fixes, fix{unit: unit, result: result})
		case result == nil && unit.Status == StatusCompleted:
			report.DemotedCompleted++
			fixes = append(fixes, fix{unit: unit})
		case result == nil && unit.Status == StatusInProgress:
			report.ResetInProgress++
			fixes = append(fixes, fix{unit: unit})
		}
	}
	if len(fixes) == 0 {
		return report, nil
	}

	now := formatTime(s.now())
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range fixes {
			if f.result != nil {
				if _, err := tx.ExecContext(ctx,
					`UPDATE units SET status = ?, manual_review = ?, completed_at = ?, updated_at = ?,
                        last_error = NULL, failure_kind = NULL
                     WHERE test_id = ?`,
					StatusCompleted, boolToInt(f.result.ManualReview), formatTime(f.result.CompletedAt), now, f.unit.TestID,
				); err != nil {
					return fmt.Errorf("recover %s: %w", f.unit.TestID, err)
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE test_id = ?`, f.unit.TestID); err != nil {
					return fmt.Errorf("drop checkpoints %s: %w", f.unit.TestID, err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE units SET status = ?, manual_review = 0, started_at = NULL, completed_at = NULL, updated_at = ?
                 WHERE test_id = ?`,
				StatusPending, now, f.unit.TestID,
			); err != nil {
				return fmt.Errorf("reset %s: %w", f.unit.TestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	return report, nil
}
