package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crucible/internal/services"
)

// ErrUnknownUnit is returned for a test id that is not part of the experiment.
var ErrUnknownUnit = errors.New("unknown test unit")

// Units returns units in matrix order, optionally filtered by status.
func (s *Store) Units(ctx context.Context, statuses ...Status) ([]Unit, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + unitColumns + ` FROM units`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY ordinal`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *unit)
	}
	return units, rows.Err()
}

// Unit fetches a single unit.
func (s *Store) Unit(ctx context.Context, testID string) (*Unit, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE test_id = ?`, testID)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "state", "get unit", testID, ErrUnknownUnit)
	}
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", testID, err)
	}
	return unit, nil
}

// PendingAndRetryable returns units a pass should execute, in matrix order.
// Units that failed an attempt below the retry cap are pending again, so the
// status alone selects them.
func (s *Store) PendingAndRetryable(ctx context.Context) ([]Unit, error) {
	return s.Units(ctx, StatusPending)
}

// Counts derives status totals from the unit rows.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1), COALESCE(SUM(manual_review), 0) FROM units GROUP BY status`)
	if err != nil {
		return Counts{}, fmt.Errorf("unit counts: %w", err)
	}
	defer rows.Close()

	var counts Counts
	for rows.Next() {
		var (
			status Status
			count  int
			review int
		)
		if err := rows.Scan(&status, &count, &review); err != nil {
			return Counts{}, err
		}
		counts.Total += count
		switch status {
		case StatusPending:
			counts.Pending += count
		case StatusInProgress:
			counts.InProgress += count
		case StatusCompleted:
			counts.Completed += count
			counts.ManualReview += review
		case StatusFailed:
			counts.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, err
	}

	kinds, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(failure_kind, 'unknown'), COUNT(1) FROM units WHERE status = ? GROUP BY failure_kind`,
		StatusFailed)
	if err != nil {
		return Counts{}, fmt.Errorf("failure counts: %w", err)
	}
	defer kinds.Close()
	for kinds.Next() {
		var (
			kind  string
			count int
		)
		if err := kinds.Scan(&kind, &count); err != nil {
			return Counts{}, err
		}
		if counts.FailuresByKind == nil {
			counts.FailuresByKind = make(map[string]int)
		}
		counts.FailuresByKind[kind] = count
	}
	return counts, kinds.Err()
}

// Requeue moves failed units back to pending with a fresh retry budget. With
// no ids every failed unit is requeued.
func (s *Store) Requeue(ctx context.Context, testIDs ...string) (int64, error) {
	query := `UPDATE units
        SET status = ?, retry_count = 0, last_error = NULL, failure_kind = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, formatTime(s.now()), StatusFailed}
	if len(testIDs) > 0 {
		query += ` AND test_id IN (` + makePlaceholders(len(testIDs)) + `)`
		for _, id := range testIDs {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue failed units: %w", err)
	}
	return res.RowsAffected()
}
