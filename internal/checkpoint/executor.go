package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
)

const (
	minBatchSize = 50
	maxBatchSize = 1000

	// Step results must stay small; only counts plus a bounded error sample
	// are journaled, never per-item arrays.
	maxJournaledErrors = 20
)

// Counters are stage-defined summable counts ("found", "new", "dist_2",
// ...). They ride inside the journaled step result, which is how cross-batch
// aggregates survive a replay that skips committed batches.
type Counters map[string]int

func (c Counters) merge(other Counters) Counters {
	if len(other) == 0 {
		return c
	}
	if c == nil {
		c = Counters{}
	}
	for k, v := range other {
		c[k] += v
	}
	return c
}

// ItemError records one recoverable per-item failure.
type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// StepResult is the journaled summary of one executed batch.
type StepResult struct {
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Counters  Counters    `json:"counters,omitempty"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// Summary aggregates a whole run across live and replayed batches.
type Summary struct {
	Batches   int
	Replayed  int
	Processed int
	Succeeded int
	Failed    int
	Counters  Counters
	Errors    []ItemError
}

// ItemFunc processes one work item and reports its counter contributions.
// A returned error is recoverable unless the executor's classifier says
// otherwise; counters returned alongside an error are still merged.
type ItemFunc func(ctx context.Context, item string) (Counters, error)

type Config struct {
	BatchSize int
	Delay     time.Duration // inter-batch delay toward upstream rate limits

	// IsCritical classifies an item error as systemic (abort the whole
	// run) rather than per-item. Typically store.IsCritical.
	IsCritical func(error) bool
}

// Executor drives a work list through ordered, journaled batches. Items
// within a batch run strictly sequentially; cancellation aborts the
// in-flight batch before it journals, so committed batches stay committed
// and a journaled result never contains items that were not attempted.
type Executor struct {
	journal Journal
	tracker *ledger.Tracker
	cfg     Config
}

func NewExecutor(journal Journal, tracker *ledger.Tracker, cfg Config) *Executor {
	if cfg.BatchSize < minBatchSize {
		cfg.BatchSize = minBatchSize
	}
	if cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	return &Executor{journal: journal, tracker: tracker, cfg: cfg}
}

// ResolveItems pins a run's work list: the first execution journals the
// selected items under stepName, and a resumed run reads the pinned list
// back instead of reselecting. Batch step names are positional, so a
// selection query that no longer returns already-processed items would
// otherwise shift every batch boundary and make replayed steps skip work
// they never did.
func (e *Executor) ResolveItems(ctx context.Context, runID, stepName string, find func(context.Context) ([]string, error)) ([]string, error) {
	raw, found, err := e.journal.GetStepResult(ctx, runID, stepName)
	if err != nil {
		return nil, fmt.Errorf("journal read %s/%s: %w", runID, stepName, err)
	}
	if found {
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("journal decode %s/%s: %w", runID, stepName, err)
		}
		log.Printf("[checkpoint] %s: reusing pinned work list %s (%d items)", runID, stepName, len(items))
		return items, nil
	}

	items, err := find(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("journal encode %s/%s: %w", runID, stepName, err)
	}
	if err := e.journal.RecordStepResult(ctx, runID, stepName, payload); err != nil {
		return nil, fmt.Errorf("journal write %s/%s: %w", runID, stepName, err)
	}
	return items, nil
}

// Run executes items in batches named "<stepPrefix>-batch-NNN" under runID.
// Batches whose result is already journaled are skipped wholesale, their
// journaled summaries folded into the run totals. A critical item error
// aborts the run; recoverable ones are collected and the batch continues.
func (e *Executor) Run(ctx context.Context, runID, stepPrefix string, items []string, fn ItemFunc) (*Summary, error) {
	sum := &Summary{}
	total := (len(items) + e.cfg.BatchSize - 1) / e.cfg.BatchSize

	for i := 0; i < len(items); i += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run %s cancelled before batch %d: %w", runID, sum.Batches+1, err)
		}

		end := i + e.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]
		batchNo := sum.Batches + 1
		stepName := fmt.Sprintf("%s-batch-%03d", stepPrefix, batchNo)

		raw, found, err := e.journal.GetStepResult(ctx, runID, stepName)
		if err != nil {
			return sum, fmt.Errorf("journal read %s/%s: %w", runID, stepName, err)
		}
		if found {
			var res StepResult
			if err := json.Unmarshal(raw, &res); err != nil {
				return sum, fmt.Errorf("journal decode %s/%s: %w", runID, stepName, err)
			}
			sum.absorb(res, true)
			log.Printf("[checkpoint] %s: skipped %s (already committed: %d/%d ok)",
				runID, stepName, res.Succeeded, res.Processed)
			continue
		}

		res, err := e.runBatch(ctx, batch, fn)
		if err != nil {
			// Critical: surface immediately so the whole job fails.
			return sum, fmt.Errorf("step %s: %w", stepName, err)
		}

		payload, err := json.Marshal(res)
		if err != nil {
			return sum, fmt.Errorf("journal encode %s/%s: %w", runID, stepName, err)
		}
		if err := e.journal.RecordStepResult(ctx, runID, stepName, payload); err != nil {
			return sum, fmt.Errorf("journal write %s/%s: %w", runID, stepName, err)
		}
		sum.absorb(res, false)

		if e.tracker != nil {
			e.tracker.ForceUpdate(ctx,
				fmt.Sprintf("%s: batch %d/%d done (%d ok, %d failed)",
					stepPrefix, batchNo, total, res.Succeeded, res.Failed),
				res.Counters.statsDelta())
		}

		if e.cfg.Delay > 0 && end < len(items) {
			select {
			case <-time.After(e.cfg.Delay):
			case <-ctx.Done():
				return sum, fmt.Errorf("run %s cancelled after batch %d: %w", runID, batchNo, ctx.Err())
			}
		}
	}
	return sum, nil
}

func (e *Executor) runBatch(ctx context.Context, batch []string, fn ItemFunc) (StepResult, error) {
	var res StepResult
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("cancelled at item %s: %w", item, err)
		}
		res.Processed++
		counters, err := fn(ctx, item)
		res.Counters = res.Counters.merge(counters)
		if err == nil {
			res.Succeeded++
			continue
		}
		if e.critical(err) {
			return res, fmt.Errorf("item %s: %w", item, err)
		}
		res.Failed++
		if len(res.Errors) < maxJournaledErrors {
			res.Errors = append(res.Errors, ItemError{Item: item, Error: err.Error()})
		}
		log.Printf("[checkpoint] item %s failed (recoverable): %v", item, err)
	}
	return res, nil
}

// critical decides whether an item error aborts the run. A cancelled
// context is always critical: items after it were never attempted and must
// not be journaled as failures.
func (e *Executor) critical(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return e.cfg.IsCritical != nil && e.cfg.IsCritical(err)
}

func (s *Summary) absorb(res StepResult, replayed bool) {
	s.Batches++
	if replayed {
		s.Replayed++
	}
	s.Processed += res.Processed
	s.Succeeded += res.Succeeded
	s.Failed += res.Failed
	s.Counters = s.Counters.merge(res.Counters)
	s.Errors = append(s.Errors, res.Errors...)
}

// Stats maps the well-known counter keys onto job counters.
func (s *Summary) Stats() domain.JobStats {
	return domain.JobStats{
		Found:   s.Counters["found"],
		New:     s.Counters["new"],
		Updated: s.Counters["updated"],
	}
}

func (c Counters) statsDelta() domain.StatsDelta {
	var d domain.StatsDelta
	if v, ok := c["found"]; ok {
		f := v
		d.Found = &f
	}
	if v, ok := c["new"]; ok {
		n := v
		d.New = &n
	}
	if v, ok := c["updated"]; ok {
		u := v
		d.Updated = &u
	}
	return d
}
