// Package pipeline composes the ingest stages (capture → materialize →
// enrich → sanitize → reconcile → analyze) around one job ledger entry per
// stage run, each driven through the batch checkpoint executor.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/flock"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/market"
	"marketpipe-engine/internal/store"
)

// StageOrder is the canonical stage sequence for a full pipeline run.
var StageOrder = []string{"capture", "materialize", "enrich", "sanitize", "reconcile", "analyze"}

type Options struct {
	Marketplace string
	DatasetID   string

	Query    string
	Pages    int
	MinPrice int

	BatchSizes      map[string]int
	InterBatchDelay time.Duration
	StageLimit      int

	ReconcileVersion string
	CleanupMode      domain.CleanupMode

	// LockPath guards a data dir against concurrent full-pipeline runs
	// from separate processes. Empty disables locking (tests).
	LockPath string
}

type Pipeline struct {
	st      *store.Store
	lg      *ledger.Ledger
	adapter market.Adapter
	opts    Options
}

func New(st *store.Store, lg *ledger.Ledger, adapter market.Adapter, opts Options) *Pipeline {
	if opts.StageLimit <= 0 {
		opts.StageLimit = 10000
	}
	return &Pipeline{st: st, lg: lg, adapter: adapter, opts: opts}
}

// RunAll runs every stage in order, aborting the remainder on the first
// stage failure. Stages that already succeeded are not rolled back.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if p.opts.LockPath != "" {
		lock := flock.New(p.opts.LockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("pipeline lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("pipeline lock %s held by another run", p.opts.LockPath)
		}
		defer func() { _ = lock.Unlock() }()
	}

	for _, stage := range StageOrder {
		if _, err := p.RunStage(ctx, stage); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

// RunStage runs a single stage by name.
func (p *Pipeline) RunStage(ctx context.Context, stage string) (*domain.Job, error) {
	switch stage {
	case "capture":
		return p.RunCapture(ctx)
	case "materialize":
		return p.RunMaterialize(ctx)
	case "enrich":
		return p.RunEnrich(ctx)
	case "sanitize":
		return p.RunSanitize(ctx)
	case "reconcile":
		return p.RunReconcile(ctx, ReconcileParams{})
	case "analyze":
		return p.RunAnalyze(ctx)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// stageBody produces the run summary plus stage-specific metadata to keep
// on the completed job.
type stageBody func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error)

// runStage adopts (or creates) the stage's ledger entry, runs the body
// through a checkpoint executor, and applies the completion policy: the job
// fails outright only when every item failed; partial failure completes
// with the failure count and the bounded error list preserved in metadata.
// Any body error re-raises after failJob so callers see the run as failed.
func (p *Pipeline) runStage(ctx context.Context, stage string, meta map[string]any, body stageBody) (*domain.Job, error) {
	job, err := p.st.GetRunningJob(ctx, stage, p.opts.Marketplace)
	if err == nil {
		log.Printf("[%s] resuming running job %s", stage, job.ID)
	} else if store.IsNotFound(err) {
		job, err = p.lg.CreateJob(ctx, stage, p.opts.Marketplace, meta, p.opts.DatasetID)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	tr := ledger.NewTracker(p.lg, job.ID)
	ex := checkpoint.NewExecutor(p.st, tr, checkpoint.Config{
		BatchSize:  p.opts.BatchSizes[stage],
		Delay:      p.opts.InterBatchDelay,
		IsCritical: store.IsCritical,
	})

	sum, extraMeta, err := body(ctx, job, tr, ex)
	if err != nil {
		_ = p.lg.FailJob(ctx, job.ID, err.Error())
		return job, err
	}

	if sum.Succeeded == 0 && sum.Failed > 0 {
		msg := fmt.Sprintf("all %d items failed", sum.Failed)
		_ = p.lg.FailJob(ctx, job.ID, msg)
		return job, fmt.Errorf("%s: %s", stage, msg)
	}

	message := fmt.Sprintf("completed %d items", sum.Processed)
	if sum.Failed > 0 {
		message = fmt.Sprintf("completed %d items (%d failed)", sum.Processed, sum.Failed)
	}
	if err := p.lg.CompleteJob(ctx, job.ID, sum.Stats(), message, completionMeta(meta, extraMeta, sum)); err != nil {
		return job, err
	}
	return p.lg.GetJob(ctx, job.ID)
}

const maxMetaErrors = 50

func completionMeta(meta, extra map[string]any, sum *checkpoint.Summary) map[string]any {
	out := map[string]any{}
	for k, v := range meta {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	out["batches"] = sum.Batches
	out["replayed_batches"] = sum.Replayed
	out["processed"] = sum.Processed
	out["succeeded"] = sum.Succeeded
	out["failed"] = sum.Failed
	if len(sum.Errors) > 0 {
		errs := sum.Errors
		if len(errs) > maxMetaErrors {
			errs = errs[:maxMetaErrors]
		}
		out["errors"] = errs
	}
	return out
}
