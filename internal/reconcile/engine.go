// Package reconcile extracts candidate catalog ids from listing text,
// validates them against the canonical catalog and maintains the
// listing↔catalog joins, stamped with the ruleset version that ran.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/store"
)

type ListingStore interface {
	GetListing(ctx context.Context, id int64) (*domain.Listing, error)
	StampReconciled(ctx context.Context, id int64, version string, at time.Time) error
}

type JoinStore interface {
	InsertJoin(ctx context.Context, j *domain.CatalogJoin) error
	DeleteJoins(ctx context.Context, listingID int64) (int64, error)
	DeactivateJoins(ctx context.Context, listingID int64) (int64, error)
}

type CatalogStore interface {
	GetCatalogEntry(ctx context.Context, catalogID string) (*domain.CatalogEntry, error)
}

// Result describes one listing's reconciliation outcome. Zero extracted ids
// is a valid, tracked outcome; the listing still gets stamped.
type Result struct {
	Extracted       bool
	Validated       bool
	JoinsCreated    int
	ExtractedCount  int
	ExtractedIDs    []string
	ValidatedIDs    []string
	NotValidatedIDs []string
}

type Engine struct {
	listings ListingStore
	joins    JoinStore
	catalog  CatalogStore
	now      func() time.Time
}

func New(listings ListingStore, joins JoinStore, catalog CatalogStore) *Engine {
	return &Engine{
		listings: listings,
		joins:    joins,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessListing runs extract → validate → cleanup → join → stamp for one
// listing. Critical store errors propagate so the enclosing batch aborts;
// everything else is the caller's per-item bookkeeping.
func (e *Engine) ProcessListing(ctx context.Context, listingID int64, version string, mode domain.CleanupMode) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid cleanup mode %q", mode)
	}

	l, err := e.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	res := &Result{ExtractedIDs: ExtractIDs(l.CombinedText())}
	res.ExtractedCount = len(res.ExtractedIDs)
	res.Extracted = res.ExtractedCount > 0

	// Validate every candidate against the canonical catalog. A candidate
	// with a variant suffix falls back to its base id.
	type validated struct {
		catalogID   string
		extractedID string
	}
	var hits []validated
	for _, id := range res.ExtractedIDs {
		entry, err := e.lookupCatalog(ctx, id)
		switch {
		case err == nil:
			res.ValidatedIDs = append(res.ValidatedIDs, id)
			hits = append(hits, validated{catalogID: entry.CatalogID, extractedID: id})
		case store.IsNotFound(err):
			res.NotValidatedIDs = append(res.NotValidatedIDs, id)
		default:
			return nil, fmt.Errorf("validate id %s: %w", id, err)
		}
	}
	res.Validated = len(res.ValidatedIDs) > 0

	// Cleanup policy applies to prior joins before any new ones land.
	switch mode {
	case domain.CleanupDelete:
		if _, err := e.joins.DeleteJoins(ctx, listingID); err != nil {
			return nil, err
		}
	case domain.CleanupSupersede:
		if _, err := e.joins.DeactivateJoins(ctx, listingID); err != nil {
			return nil, err
		}
	case domain.CleanupKeep:
		// prior joins untouched; new validated ids only append
	}

	now := e.now()
	for _, h := range hits {
		j := &domain.CatalogJoin{
			ListingID:   listingID,
			CatalogID:   h.catalogID,
			ExtractedID: h.extractedID,
			Version:     version,
			Active:      true,
			CreatedAt:   now,
		}
		if err := e.joins.InsertJoin(ctx, j); err != nil {
			return nil, fmt.Errorf("insert join %s: %w", h.catalogID, err)
		}
		res.JoinsCreated++
	}

	if err := e.listings.StampReconciled(ctx, listingID, version, now); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) lookupCatalog(ctx context.Context, extractedID string) (*domain.CatalogEntry, error) {
	entry, err := e.catalog.GetCatalogEntry(ctx, extractedID)
	if err == nil || !store.IsNotFound(err) {
		return entry, err
	}
	if base, _, ok := strings.Cut(extractedID, "-"); ok {
		return e.catalog.GetCatalogEntry(ctx, base)
	}
	return nil, err
}
