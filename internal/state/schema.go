package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape.
const schemaVersion = 1

// ErrSchemaMismatch reports a state database written by a different schema.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the tables on first open and otherwise checks the stored
// version. There are no migrations: artifacts on disk are the durable record
// and the database can be rebuilt from a fresh run.
func (s *Store) initSchema(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: schema_version is empty in %s", ErrSchemaMismatch, s.path)
	default:
		var tables int
		if countErr := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
		).Scan(&tables); countErr != nil {
			return fmt.Errorf("check schema_version table: %w", countErr)
		}
		if tables > 0 {
			return fmt.Errorf("read schema version: %w", err)
		}
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (remove %s to start over; results are kept)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}
