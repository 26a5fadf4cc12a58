package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"marketpipe-engine/internal/checkpoint"
	"marketpipe-engine/internal/dedupe"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/store"
)

// RunMaterialize parses the raw search payloads of the most recent capture
// job into listing rows. Candidates already known by natural key only get
// their last_seen timestamp refreshed; the unique index on
// (marketplace, external_id) backstops any race the lookup misses.
func (p *Pipeline) RunMaterialize(ctx context.Context) (*domain.Job, error) {
	captureID, err := p.st.LatestJobID(ctx, "capture", p.opts.Marketplace)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("materialize: no capture job for %s", p.opts.Marketplace)
		}
		return nil, err
	}
	meta := map[string]any{"capture_job": captureID}

	return p.runStage(ctx, "materialize", meta, func(ctx context.Context, job *domain.Job, tr *ledger.Tracker, ex *checkpoint.Executor) (*checkpoint.Summary, map[string]any, error) {
		items, err := ex.ResolveItems(ctx, job.ID, "materialize-find", func(ctx context.Context) ([]string, error) {
			payloadIDs, err := p.st.ListPayloadIDs(ctx, captureID, domain.PayloadSearch)
			if err != nil {
				return nil, err
			}
			return idItems(payloadIDs), nil
		})
		if err != nil {
			return nil, nil, err
		}

		dd := dedupe.New(p.st)
		sum, err := ex.Run(ctx, job.ID, "materialize", items, func(ctx context.Context, item string) (checkpoint.Counters, error) {
			payloadID, _ := strconv.ParseInt(item, 10, 64)
			return p.materializePayload(ctx, tr, dd, payloadID)
		})
		return sum, nil, err
	})
}

func (p *Pipeline) materializePayload(ctx context.Context, tr *ledger.Tracker, dd *dedupe.Engine, payloadID int64) (checkpoint.Counters, error) {
	payload, err := p.st.GetPayload(ctx, payloadID)
	if err != nil {
		return nil, fmt.Errorf("payload %d: %w", payloadID, err)
	}
	summaries, err := p.adapter.ParseSearchPayload(payload.Body)
	if err != nil {
		return nil, fmt.Errorf("parse payload %d: %w", payloadID, err)
	}

	candidates := make([]domain.Candidate, 0, len(summaries))
	for _, s := range summaries {
		candidates = append(candidates, domain.Candidate{
			Marketplace: p.opts.Marketplace,
			ExternalID:  s.ExternalID,
			Title:       s.Title,
			Price:       s.Price,
			URL:         s.URL,
			PayloadID:   payloadID,
		})
	}

	res, err := dd.Deduplicate(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("dedupe payload %d: %w", payloadID, err)
	}

	now := time.Now().UTC()
	counters := checkpoint.Counters{"updated": len(res.ExistingIDs)}
	for _, c := range res.NewItems {
		added, err := p.st.InsertListingIgnore(ctx, &domain.Listing{
			Marketplace: c.Marketplace,
			ExternalID:  c.ExternalID,
			Title:       c.Title,
			Price:       c.Price,
			URL:         c.URL,
			Status:      domain.ListingActive,
			FirstSeenAt: now,
			LastSeenAt:  now,
			DatasetID:   p.opts.DatasetID,
		})
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", c.Key(), err)
		}
		if added {
			counters["new"]++
		} else {
			counters["updated"]++
		}
	}
	tr.RecordProgress(ctx, fmt.Sprintf("materialized payload %d (%d new)", payloadID, counters["new"]), domain.StatsDelta{}, false)
	return counters, nil
}
