package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crucible/internal/fileutil"
	"crucible/internal/logging"
)

// ErrInvalidTransition is returned when a unit is not in the state a transition requires.
var ErrInvalidTransition = errors.New("invalid unit transition")

// TransitionKind names a unit lifecycle move.
type TransitionKind string

const (
	// TransitionStart moves pending to in_progress.
	TransitionStart TransitionKind = "start"
	// TransitionComplete persists the result, then moves in_progress to completed.
	TransitionComplete TransitionKind = "complete"
	// TransitionFail ends an attempt. The unit returns to pending while it
	// has retries left and is failed at the cap or when Terminal is set.
	TransitionFail TransitionKind = "fail"
	// TransitionRelease returns an interrupted unit to pending without
	// consuming a retry.
	TransitionRelease TransitionKind = "release"
)

// Transition is the payload of a lifecycle move.
type Transition struct {
	Kind        TransitionKind
	Result      *TestResult
	Error       string
	FailureKind string
	Terminal    bool
}

// Transition applies t to the unit identified by testID.
func (s *Store) Transition(ctx context.Context, testID string, t Transition) error {
	switch t.Kind {
	case TransitionStart:
		return s.start(ctx, testID)
	case TransitionComplete:
		return s.complete(ctx, testID, t.Result)
	case TransitionFail:
		return s.fail(ctx, testID, t)
	case TransitionRelease:
		return s.release(ctx, testID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransition, t.Kind)
	}
}

func (s *Store) start(ctx context.Context, testID string) error {
	now := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE units SET status = ?, started_at = ?, updated_at = ? WHERE test_id = ? AND status = ?`,
		StatusInProgress, now, now, testID, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("start unit %s: %w", testID, err)
	}
	return s.requireAffected(ctx, res, testID, TransitionStart)
}

func (s *Store) complete(ctx context.Context, testID string, result *TestResult) error {
	if result == nil {
		return fmt.Errorf("%w: complete %s without a result", ErrInvalidTransition, testID)
	}
	unit, err := s.Unit(ctx, testID)
	if err != nil {
		return err
	}
	if unit.Status != StatusInProgress {
		return fmt.Errorf("%w: complete %s from %s", ErrInvalidTransition, testID, unit.Status)
	}

	result.TestID = testID
	result.RetryCount = unit.RetryCount
	if result.CompletedAt.IsZero() {
		result.CompletedAt = s.now()
	}
	// The artifact is the completion signal; the row follows it.
	if err := fileutil.WriteJSONAtomic(s.ResultPath(testID), result); err != nil {
		return fmt.Errorf("write result %s: %w", testID, err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE units SET status = ?, manual_review = ?, completed_at = ?, updated_at = ?,
                last_error = NULL, failure_kind = NULL
             WHERE test_id = ? AND status = ?`,
			StatusCompleted, boolToInt(result.ManualReview), formatTime(result.CompletedAt), formatTime(s.now()),
			testID, StatusInProgress,
		)
		if err != nil {
			return fmt.Errorf("complete unit %s: %w", testID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: complete %s", ErrInvalidTransition, testID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE test_id = ?`, testID); err != nil {
			return fmt.Errorf("drop checkpoints %s: %w", testID, err)
		}
		return nil
	})
}

func (s *Store) fail(ctx context.Context, testID string, t Transition) error {
	var next Status
	var retries int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx,
			`SELECT status, retry_count FROM units WHERE test_id = ?`, testID,
		).Scan(&status, &retries); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrUnknownUnit, testID)
			}
			return fmt.Errorf("read unit %s: %w", testID, err)
		}
		if Status(status) != StatusInProgress {
			return fmt.Errorf("%w: fail %s from %s", ErrInvalidTransition, testID, status)
		}
		retries = min(retries+1, s.maxRetries)
		next = StatusPending
		if t.Terminal || retries >= s.maxRetries {
			next = StatusFailed
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE units SET status = ?, retry_count = ?, last_error = ?, failure_kind = ?, updated_at = ?
             WHERE test_id = ?`,
			next, retries, nullableString(t.Error), nullableString(t.FailureKind), formatTime(s.now()), testID,
		)
		if err != nil {
			return fmt.Errorf("fail unit %s: %w", testID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("unit attempt failed",
		logging.String(logging.FieldTestID, testID),
		logging.String("next_status", string(next)),
		logging.Int("retry_count", retries),
		logging.Int("max_retries", s.maxRetries),
		logging.String(logging.FieldErrorKind, t.FailureKind),
	)
	return nil
}

func (s *Store) release(ctx context.Context, testID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE units SET status = ?, started_at = NULL, updated_at = ? WHERE test_id = ? AND status = ?`,
		StatusPending, formatTime(s.now()), testID, StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("release unit %s: %w", testID, err)
	}
	return s.requireAffected(ctx, res, testID, TransitionRelease)
}

func (s *Store) requireAffected(ctx context.Context, res sql.Result, testID string, kind TransitionKind) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	unit, err := s.Unit(ctx, testID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s from %s", ErrInvalidTransition, kind, testID, unit.Status)
}
