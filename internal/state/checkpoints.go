package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// SaveCheckpoint stores a parsed layer so a re-executed unit can skip it.
func (s *Store) SaveCheckpoint(ctx context.Context, testID string, layer LayerResult) error {
	payload, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO checkpoints (test_id, layer, payload_json, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(test_id, layer) DO UPDATE SET payload_json = excluded.payload_json, created_at = excluded.created_at`,
		testID, layer.Layer, string(payload), formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("save checkpoint %s layer %d: %w", testID, layer.Layer, err)
	}
	return nil
}

// Checkpoints returns the saved layers of a unit in layer order.
func (s *Store) Checkpoints(ctx context.Context, testID string) ([]LayerResult, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM checkpoints WHERE test_id = ? ORDER BY layer`, testID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s: %w", testID, err)
	}
	defer rows.Close()

	var layers []LayerResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var layer LayerResult
		if err := json.Unmarshal([]byte(payload), &layer); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", testID, err)
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}
