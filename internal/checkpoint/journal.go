// Package checkpoint provides replay-safe batch execution: a run is split
// into named steps whose summary results are persisted in a journal, so a
// replayed run skips work that already committed.
package checkpoint

import (
	"context"
	"encoding/json"
)

// Journal persists one small result per (runID, stepName). First write wins;
// re-recording an already-journaled step must be a no-op so replays cannot
// rewrite history. The sqlite store implements this over the run_steps table.
type Journal interface {
	GetStepResult(ctx context.Context, runID, stepName string) (json.RawMessage, bool, error)
	RecordStepResult(ctx context.Context, runID, stepName string, result json.RawMessage) error
}
