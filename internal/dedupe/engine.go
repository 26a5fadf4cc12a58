// Package dedupe resolves capture candidates against persisted listing
// identity. Resolution always goes through the store, never an in-memory
// set: that is what keeps overlapping, independently checkpointed (and
// possibly replayed) batches from both treating a key as new.
package dedupe

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/store"
)

type ListingStore interface {
	FindListingID(ctx context.Context, key domain.ListingKey) (int64, error)
	TouchLastSeen(ctx context.Context, ids []int64, t time.Time) error
}

// Result partitions candidates into unseen items and already-persisted ids.
type Result struct {
	NewItems    []domain.Candidate
	ExistingIDs map[domain.ListingKey]int64
}

type Engine struct {
	listings ListingStore
	now      func() time.Time
}

func New(listings ListingStore) *Engine {
	return &Engine{listings: listings, now: func() time.Time { return time.Now().UTC() }}
}

// Deduplicate looks up every candidate's natural key. Lookup failures are
// logged and treated as "not found", so the candidate is retried as new
// rather than silently dropped; the unique index on the listings table
// keeps that retry from double-inserting. Matched listings get a
// last_seen_at touch instead of a reinsert.
func (e *Engine) Deduplicate(ctx context.Context, candidates []domain.Candidate) (*Result, error) {
	res := &Result{ExistingIDs: make(map[domain.ListingKey]int64)}

	var touch []int64
	for _, c := range candidates {
		key := c.Key()
		id, err := e.listings.FindListingID(ctx, key)
		switch {
		case err == nil:
			if _, dup := res.ExistingIDs[key]; !dup {
				touch = append(touch, id)
			}
			res.ExistingIDs[key] = id
		case store.IsNotFound(err):
			res.NewItems = append(res.NewItems, c)
		default:
			log.Printf("[dedupe] lookup failed key=%s, treating as new: %v", key, err)
			res.NewItems = append(res.NewItems, c)
		}
	}

	if len(touch) > 0 {
		if err := e.listings.TouchLastSeen(ctx, touch, e.now()); err != nil {
			return res, fmt.Errorf("touch last_seen for %d listings: %w", len(touch), err)
		}
	}
	return res, nil
}
