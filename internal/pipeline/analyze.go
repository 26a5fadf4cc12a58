package pipeline

import (
	"context"
	"fmt"
	"time"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/store"
)

// RunAnalyze recomputes per-catalog price statistics from the active joins.
// Stats rows are replaced wholesale, so a catalog id losing all its joins
// since the previous run keeps its last computed row until it is joined
// again.
func (p *Pipeline) RunAnalyze(ctx context.Context) (*domain.Job, error) {
	return p.runStage(ctx, "analyze", nil, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "analyze-find", func(ctx context.Context) ([]string, error) {
			return p.st.ListJoinedCatalogIDs(ctx)
		})
		if err != nil {
			return nil, nil, err
		}

		sum, err := ex.Run(ctx, job.ID, "analyze", items, func(ctx context.Context, catalogID string) (checkpoint.Counters, error) {
			prices, err := p.st.ListJoinedPrices(ctx, catalogID)
			if err != nil {
				return nil, fmt.Errorf("prices for %s: %w", catalogID, err)
			}
			stat := computeStat(catalogID, prices)
			if err := p.st.ReplaceListingStat(ctx, stat); err != nil {
				return nil, fmt.Errorf("stat for %s: %w", catalogID, err)
			}
			tr.RecordProgress(ctx, fmt.Sprintf("analyzed %s (%d listings)", catalogID, stat.ListingCount), domain.StatsDelta{}, false)
			return checkpoint.Counters{"updated": 1}, nil
		})
		return sum, nil, err
	})
}

// computeStat derives count/min/median/max over the nonzero prices, which
// arrive sorted ascending from the store. Zero prices mean "no price
// listed" upstream and would drag the minimum to a meaningless floor.
func computeStat(catalogID string, prices []store.ListingPrice) *store.ListingStat {
	stat := &store.ListingStat{CatalogID: catalogID, ComputedAt: time.Now().UTC()}
	priced := make([]int, 0, len(prices))
	for _, p := range prices {
		stat.ListingCount++
		if p.Status == domain.ListingActive {
			stat.ActiveCount++
		}
		if p.Price > 0 {
			priced = append(priced, p.Price)
		}
	}
	if len(priced) == 0 {
		return stat
	}
	stat.MinPrice = priced[0]
	stat.MaxPrice = priced[len(priced)-1]
	mid := len(priced) / 2
	if len(priced)%2 == 1 {
		stat.MedianPrice = priced[mid]
	} else {
		stat.MedianPrice = (priced[mid-1] + priced[mid]) / 2
	}
	return stat
}
