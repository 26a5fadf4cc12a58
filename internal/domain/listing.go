package domain

import (
	"fmt"
	"time"
)

type ListingStatus string

const (
	ListingActive  = ListingStatus("active")
	ListingExpired = ListingStatus("expired")
	ListingSold    = ListingStatus("sold")
	ListingRemoved = ListingStatus("removed")
)

// ListingKey is the natural key identifying a listing's real-world identity.
// At most one listing row exists per key, enforced by a unique index.
type ListingKey struct {
	Marketplace string
	ExternalID  string
}

func (k ListingKey) String() string {
	return k.Marketplace + ":" + k.ExternalID
}

// Listing is one marketplace listing. Created by materialization, mutated by
// enrich/sanitize/reconcile, never deleted by the pipeline.
type Listing struct {
	ID          int64
	Marketplace string
	ExternalID  string
	Title       string
	Price       int
	URL         string
	Location    string
	PostalCode  string
	Status      ListingStatus

	Description      string // raw upstream text, usually HTML
	DescriptionClean string // sanitizer output

	FirstSeenAt time.Time
	LastSeenAt  time.Time
	EnrichedAt  *time.Time
	SanitizedAt *time.Time

	ReconciledAt          *time.Time
	ReconciliationVersion string

	DatasetID string
}

func (l Listing) Key() ListingKey {
	return ListingKey{Marketplace: l.Marketplace, ExternalID: l.ExternalID}
}

// CombinedText is the free text the reconciliation extractor scans. Prefers
// the sanitized description when the sanitize stage already ran.
func (l Listing) CombinedText() string {
	desc := l.DescriptionClean
	if desc == "" {
		desc = l.Description
	}
	return fmt.Sprintf("%s\n%s", l.Title, desc)
}

// Candidate is a listing-shaped record coming out of capture, before the
// deduplication engine resolves it against persisted state.
type Candidate struct {
	Marketplace string
	ExternalID  string
	Title       string
	Price       int
	URL         string
	PayloadID   int64 // raw payload the candidate was parsed from
}

func (c Candidate) Key() ListingKey {
	return ListingKey{Marketplace: c.Marketplace, ExternalID: c.ExternalID}
}
