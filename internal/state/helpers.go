package state

import (
	"database/sql"
	"errors"
	"time"
)

const unitColumns = "test_id, scenario_id, constitution_id, model_id, ordinal, status, retry_count, last_error, failure_kind, manual_review, created_at, updated_at, started_at, completed_at"

func scanUnit(scanner interface{ Scan(dest ...any) error }) (*Unit, error) {
	var (
		unit         Unit
		statusStr    string
		lastError    sql.NullString
		failureKind  sql.NullString
		manualReview sql.NullInt64
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&unit.TestID,
		&unit.ScenarioID,
		&unit.ConstitutionID,
		&unit.ModelID,
		&unit.Ordinal,
		&statusStr,
		&unit.RetryCount,
		&lastError,
		&failureKind,
		&manualReview,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	unit.Status = Status(statusStr)
	unit.LastError = lastError.String
	unit.FailureKind = failureKind.String
	unit.ManualReview = manualReview.Valid && manualReview.Int64 != 0
	if created, err := parseTimeString(createdRaw.String); err == nil {
		unit.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		unit.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			unit.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			unit.CompletedAt = &completed
		}
	}
	return &unit, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
