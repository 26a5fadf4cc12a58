package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// The run_steps table is the checkpoint journal: one row per named step per
// run, holding a small JSON result summary. First write wins, so a replayed
// step can never overwrite the result of the committed original.

func (s *Store) GetStepResult(ctx context.Context, runID, stepName string) (json.RawMessage, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `
SELECT result FROM run_steps WHERE run_id = ? AND step_name = ?;`,
		runID, stepName).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("steps.get", err)
	}
	return json.RawMessage(result), true, nil
}

func (s *Store) RecordStepResult(ctx context.Context, runID, stepName string, result json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_steps (run_id, step_name, result, recorded_at)
VALUES (?,?,?,?)
ON CONFLICT(run_id, step_name) DO NOTHING;`,
		runID, stepName, string(result), fmtTime(s.now()))
	return classify("steps.record", err)
}
