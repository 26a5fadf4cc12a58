package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJournal is an in-memory Journal with first-write-wins semantics.
type memJournal struct {
	steps  map[string]json.RawMessage
	writes int
}

func newMemJournal() *memJournal {
	return &memJournal{steps: map[string]json.RawMessage{}}
}

func (m *memJournal) key(runID, stepName string) string { return runID + "/" + stepName }

func (m *memJournal) GetStepResult(ctx context.Context, runID, stepName string) (json.RawMessage, bool, error) {
	raw, ok := m.steps[m.key(runID, stepName)]
	return raw, ok, nil
}

func (m *memJournal) RecordStepResult(ctx context.Context, runID, stepName string, result json.RawMessage) error {
	k := m.key(runID, stepName)
	if _, ok := m.steps[k]; ok {
		return nil
	}
	m.steps[k] = result
	m.writes++
	return nil
}

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestRunJournalsEveryBatch(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})

	sum, err := ex.Run(context.Background(), "job_1", "capture", items(120), func(ctx context.Context, item string) (Counters, error) {
		return Counters{"found": 1}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Batches)
	assert.Equal(t, 0, sum.Replayed)
	assert.Equal(t, 120, sum.Processed)
	assert.Equal(t, 120, sum.Succeeded)
	assert.Equal(t, 120, sum.Counters["found"])
	assert.Equal(t, 120, sum.Stats().Found)

	for _, step := range []string{"capture-batch-001", "capture-batch-002", "capture-batch-003"} {
		_, ok := j.steps["job_1/"+step]
		assert.True(t, ok, step)
	}
}

func TestRunReplaySkipsCommittedBatches(t *testing.T) {
	j := newMemJournal()
	work := items(120)
	run := func() (*Summary, int, error) {
		calls := 0
		ex := NewExecutor(j, nil, Config{BatchSize: 50})
		sum, err := ex.Run(context.Background(), "job_1", "enrich", work, func(ctx context.Context, item string) (Counters, error) {
			calls++
			return Counters{"updated": 1}, nil
		})
		return sum, calls, err
	}

	_, calls, err := run()
	require.NoError(t, err)
	assert.Equal(t, 120, calls)

	// replay: every batch is already committed, nothing runs again
	sum, calls, err := run()
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Equal(t, 3, sum.Replayed)
	assert.Equal(t, 120, sum.Processed)
	assert.Equal(t, 120, sum.Counters["updated"], "journaled counters survive the replay")
	assert.Equal(t, 3, j.writes, "replays never rewrite the journal")
}

func TestRunCollectsRecoverableErrors(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})

	sum, err := ex.Run(context.Background(), "job_1", "sanitize", items(50), func(ctx context.Context, item string) (Counters, error) {
		n, _ := strconv.Atoi(item)
		if n < 25 {
			return nil, fmt.Errorf("broken item %s", item)
		}
		return Counters{"updated": 1}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 50, sum.Processed)
	assert.Equal(t, 25, sum.Succeeded)
	assert.Equal(t, 25, sum.Failed)
	assert.Len(t, sum.Errors, 20, "journaled errors are sampled, not exhaustive")
	assert.Equal(t, 25, sum.Counters["updated"])
}

func TestRunAbortsOnCriticalError(t *testing.T) {
	j := newMemJournal()
	critical := errors.New("schema gone")
	ex := NewExecutor(j, nil, Config{
		BatchSize:  50,
		IsCritical: func(err error) bool { return errors.Is(err, critical) },
	})

	calls := 0
	sum, err := ex.Run(context.Background(), "job_1", "reconcile", items(120), func(ctx context.Context, item string) (Counters, error) {
		calls++
		if item == "60" {
			return nil, critical
		}
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, critical)
	assert.Contains(t, err.Error(), "reconcile-batch-002")

	// first batch committed, aborted batch left unjournaled for the retry
	assert.Equal(t, 1, sum.Batches)
	_, ok := j.steps["job_1/reconcile-batch-001"]
	assert.True(t, ok)
	_, ok = j.steps["job_1/reconcile-batch-002"]
	assert.False(t, ok)
	assert.Equal(t, 61, calls)
}

func TestRunCancellationAbortsInFlightBatch(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	sum, err := ex.Run(ctx, "job_1", "analyze", items(120), func(ctx context.Context, item string) (Counters, error) {
		calls++
		if item == "10" {
			cancel()
		}
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// nothing past the cancel was attempted, and the half-run batch was not
	// journaled, so a resume retries it from the start
	assert.Equal(t, 11, calls)
	assert.Zero(t, sum.Batches)
	assert.Zero(t, sum.Failed, "unattempted items are not phantom failures")
	_, ok := j.steps["job_1/analyze-batch-001"]
	assert.False(t, ok)
}

func TestRunCancellationKeepsCommittedBatches(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})

	ctx, cancel := context.WithCancel(context.Background())
	sum, err := ex.Run(ctx, "job_1", "analyze", items(120), func(ctx context.Context, item string) (Counters, error) {
		if item == "49" { // last item of batch 1
			cancel()
		}
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// the batch that finished before the cancel stays committed
	assert.Equal(t, 1, sum.Batches)
	assert.Equal(t, 50, sum.Processed)
	_, ok := j.steps["job_1/analyze-batch-001"]
	assert.True(t, ok)
	_, ok = j.steps["job_1/analyze-batch-002"]
	assert.False(t, ok)
}

func TestRunItemErrorWrappingCancellationIsCritical(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})

	sum, err := ex.Run(context.Background(), "job_1", "enrich", items(50), func(ctx context.Context, item string) (Counters, error) {
		if item == "5" {
			return nil, fmt.Errorf("fetch item %s: %w", item, context.Canceled)
		}
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Batches)
	_, ok := j.steps["job_1/enrich-batch-001"]
	assert.False(t, ok)
}

func TestResolveItemsPinsSelection(t *testing.T) {
	j := newMemJournal()
	ex := NewExecutor(j, nil, Config{BatchSize: 50})
	ctx := context.Background()

	full := items(60)
	got, err := ex.ResolveItems(ctx, "job_1", "enrich-find", func(context.Context) ([]string, error) {
		return full, nil
	})
	require.NoError(t, err)
	assert.Equal(t, full, got)

	// a resumed run sees the pinned list, not the shrunken live selection
	finds := 0
	got, err = ex.ResolveItems(ctx, "job_1", "enrich-find", func(context.Context) ([]string, error) {
		finds++
		return full[50:], nil
	})
	require.NoError(t, err)
	assert.Equal(t, full, got)
	assert.Zero(t, finds, "pinned list makes reselection unnecessary")
	assert.Equal(t, 1, j.writes)
}

func TestResolveItemsFindFailurePropagates(t *testing.T) {
	ex := NewExecutor(newMemJournal(), nil, Config{BatchSize: 50})

	boom := errors.New("select failed")
	_, err := ex.ResolveItems(context.Background(), "job_1", "enrich-find", func(context.Context) ([]string, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBatchSizeClamped(t *testing.T) {
	ex := NewExecutor(newMemJournal(), nil, Config{BatchSize: 5})
	assert.Equal(t, 50, ex.cfg.BatchSize)

	ex = NewExecutor(newMemJournal(), nil, Config{BatchSize: 9999})
	assert.Equal(t, 1000, ex.cfg.BatchSize)
}
