package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/market"
)

// RunCapture pages through marketplace search results and stores each raw
// response body. Materialization happens in the next stage, so a capture
// run is useful even when later parsing changes.
func (p *Pipeline) RunCapture(ctx context.Context) (*domain.Job, error) {
	pages := p.opts.Pages
	if pages <= 0 {
		pages = 1
	}
	meta := map[string]any{"query": p.opts.Query, "pages": pages}

	return p.runStage(ctx, "capture", meta, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "capture-find", func(context.Context) ([]string, error) {
			pageItems := make([]string, 0, pages)
			for i := 1; i <= pages; i++ {
				pageItems = append(pageItems, strconv.Itoa(i))
			}
			return pageItems, nil
		})
		if err != nil {
			return nil, nil, err
		}

		sum, err := ex.Run(ctx, job.ID, "capture", items, func(ctx context.Context, item string) (checkpoint.Counters, error) {
			page, _ := strconv.Atoi(item)
			sp, err := p.adapter.SearchListings(ctx, market.SearchParams{
				Query:    p.opts.Query,
				Page:     page,
				MinPrice: p.opts.MinPrice,
			})
			if err != nil {
				return nil, fmt.Errorf("search page %d: %w", page, err)
			}
			if len(sp.Raw) > 0 {
				_, err = p.st.InsertPayload(ctx, &domain.RawPayload{
					JobID:       job.ID,
					Marketplace: p.opts.Marketplace,
					Kind:        domain.PayloadSearch,
					Page:        page,
					Body:        sp.Raw,
				})
				if err != nil {
					return nil, fmt.Errorf("store page %d payload: %w", page, err)
				}
			}
			tr.RecordProgress(ctx, fmt.Sprintf("captured page %d (%d listings)", page, len(sp.Listings)), domain.StatsDelta{}, false)
			return checkpoint.Counters{"found": len(sp.Listings)}, nil
		})
		return sum, nil, err
	})
}
