package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
)

// RunEnrich fetches the full detail record for listings that have never been
// enriched, storing the raw detail payload alongside the parsed fields. A
// detail fetch that fails marks only that item failed; the run carries on.
// The selection is pinned in the journal: a resumed run works the original
// list, not a reselection that already-enriched listings have dropped out of.
func (p *Pipeline) RunEnrich(ctx context.Context) (*domain.Job, error) {
	return p.runStage(ctx, "enrich", nil, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "enrich-find", func(ctx context.Context) ([]string, error) {
			ids, err := p.st.ListNeedingEnrichment(ctx, p.opts.DatasetID, p.opts.StageLimit)
			if err != nil {
				return nil, err
			}
			return idItems(ids), nil
		})
		if err != nil {
			return nil, nil, err
		}

		sum, err := ex.Run(ctx, job.ID, "enrich", items, func(ctx context.Context, item string) (checkpoint.Counters, error) {
			id, _ := strconv.ParseInt(item, 10, 64)
			return p.enrichListing(ctx, tr, job.ID, id)
		})
		return sum, nil, err
	})
}

func (p *Pipeline) enrichListing(ctx context.Context, tr *ledger.Tracker, jobID string, id int64) (checkpoint.Counters, error) {
	l, err := p.st.GetListing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing %d: %w", id, err)
	}

	detail, raw, err := p.adapter.FetchListing(ctx, l.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", l.Key(), err)
	}
	if len(raw) > 0 {
		_, err = p.st.InsertPayload(ctx, &domain.RawPayload{
			JobID:       jobID,
			Marketplace: l.Marketplace,
			Kind:        domain.PayloadDetail,
			Body:        raw,
		})
		if err != nil {
			return nil, fmt.Errorf("store detail payload for %s: %w", l.Key(), err)
		}
	}

	title := detail.Title
	if title == "" {
		title = l.Title
	}
	price := detail.Price
	if price == 0 {
		price = l.Price
	}
	status := listingStatus(detail.Status)
	err = p.st.UpdateListingDetail(ctx, id, title, price, detail.Location, detail.PostalCode, detail.Description, status, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", l.Key(), err)
	}

	tr.RecordProgress(ctx, fmt.Sprintf("enriched %s", l.Key()), domain.StatsDelta{}, false)
	return checkpoint.Counters{"updated": 1}, nil
}

func listingStatus(s string) domain.ListingStatus {
	switch domain.ListingStatus(s) {
	case domain.ListingExpired, domain.ListingSold, domain.ListingRemoved:
		return domain.ListingStatus(s)
	}
	return domain.ListingActive
}

func idItems(ids []int64) []string {
	items := make([]string, len(ids))
	for i, id := range ids {
		items[i] = strconv.FormatInt(id, 10)
	}
	return items
}
