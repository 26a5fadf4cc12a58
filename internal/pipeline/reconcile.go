package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/reconcile"
)

// ReconcileParams override the pipeline defaults for one reconciliation
// run. Zero values fall back to the configured version, cleanup mode and
// stage limit.
type ReconcileParams struct {
	ListingIDs  []int64
	Limit       int
	Version     string
	CleanupMode domain.CleanupMode
	Rerun       bool
	DatasetID   string
}

// RunReconcile extracts catalog ids from listing text, validates them
// against the catalog and rewrites the listing's joins. Every selected
// listing is stamped with the run's version even when nothing was
// extracted, so a version bump reprocesses the whole corpus exactly once.
func (p *Pipeline) RunReconcile(ctx context.Context, params ReconcileParams) (*domain.Job, error) {
	if params.Version == "" {
		params.Version = p.opts.ReconcileVersion
	}
	if params.CleanupMode == "" {
		params.CleanupMode = p.opts.CleanupMode
	}
	if params.Limit <= 0 {
		params.Limit = p.opts.StageLimit
	}
	if params.DatasetID == "" {
		params.DatasetID = p.opts.DatasetID
	}
	if !params.CleanupMode.Valid() {
		return nil, fmt.Errorf("reconcile: invalid cleanup mode %q", params.CleanupMode)
	}

	meta := map[string]any{
		"version":      params.Version,
		"cleanup_mode": string(params.CleanupMode),
		"rerun":        params.Rerun,
	}

	return p.runStage(ctx, "reconcile", meta, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "reconcile-find", func(ctx context.Context) ([]string, error) {
			ids, err := p.st.ListNeedingReconciliation(ctx, params.Version, params.Rerun, params.DatasetID, params.Limit, params.ListingIDs)
			if err != nil {
				return nil, err
			}
			return idItems(ids), nil
		})
		if err != nil {
			return nil, nil, err
		}

		eng := reconcile.New(p.st, p.st, p.st)
		sum, err := ex.Run(ctx, job.ID, "reconcile", items, func(ctx context.Context, item string) (checkpoint.Counters, error) {
			id, _ := strconv.ParseInt(item, 10, 64)
			res, err := eng.ProcessListing(ctx, id, params.Version, params.CleanupMode)
			if err != nil {
				return nil, fmt.Errorf("listing %d: %w", id, err)
			}

			counters := checkpoint.Counters{
				"extracted": res.ExtractedCount,
				"validated": len(res.ValidatedIDs),
				"joins":     res.JoinsCreated,
			}
			counters[bucketKey(res.ExtractedCount)] = 1
			if res.JoinsCreated > 0 {
				counters["updated"] = 1
			}
			tr.RecordProgress(ctx, fmt.Sprintf("reconciled listing %d (%d joins)", id, res.JoinsCreated), domain.StatsDelta{}, false)
			return counters, nil
		})
		if err != nil {
			return sum, nil, err
		}

		extra := map[string]any{
			"extracted":    sum.Counters["extracted"],
			"validated":    sum.Counters["validated"],
			"joins":        sum.Counters["joins"],
			"distribution": distribution(sum.Counters),
		}
		return sum, extra, nil
	})
}

// bucketKey buckets an extraction count into 0..4 and 5+, the shape the
// completion metadata reports the distribution in.
func bucketKey(n int) string {
	if n >= 5 {
		return "dist_5plus"
	}
	return "dist_" + strconv.Itoa(n)
}

func distribution(c checkpoint.Counters) []int {
	return []int{c["dist_0"], c["dist_1"], c["dist_2"], c["dist_3"], c["dist_4"], c["dist_5plus"]}
}
