package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/sanitize"
)

// RunSanitize strips HTML from enriched descriptions so reconciliation
// scans plain text. Listings enriched with an empty description still get
// stamped, otherwise they would be reselected forever.
func (p *Pipeline) RunSanitize(ctx context.Context) (*domain.Job, error) {
	return p.runStage(ctx, "sanitize", nil, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "sanitize-find", func(ctx context.Context) ([]string, error) {
			ids, err := p.st.ListNeedingSanitize(ctx, p.opts.DatasetID, p.opts.StageLimit)
			if err != nil {
				return nil, err
			}
			return idItems(ids), nil
		})
		if err != nil {
			return nil, nil, err
		}

		sum, err := ex.Run(ctx, job.ID, "sanitize", items, func(ctx context.Context, item string) (checkpoint.Counters, error) {
			id, _ := strconv.ParseInt(item, 10, 64)
			l, err := p.st.GetListing(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("listing %d: %w", id, err)
			}
			clean, err := sanitize.CleanHTML(l.Description)
			if err != nil {
				return nil, fmt.Errorf("clean %s: %w", l.Key(), err)
			}
			if err := p.st.UpdateListingClean(ctx, id, clean, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("update %s: %w", l.Key(), err)
			}
			tr.RecordProgress(ctx, fmt.Sprintf("sanitized %s", l.Key()), domain.StatsDelta{}, false)
			return checkpoint.Counters{"updated": 1}, nil
		})
		return sum, nil, err
	})
}
