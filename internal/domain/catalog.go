package domain

import "time"

// CleanupMode governs how a listing's prior catalog joins are treated when
// a reconciliation run writes new ones.
type CleanupMode string

const (
	CleanupDelete    = CleanupMode("delete")    // drop prior joins outright
	CleanupSupersede = CleanupMode("supersede") // flag prior joins inactive
	CleanupKeep      = CleanupMode("keep")      // leave prior joins untouched
)

func (m CleanupMode) Valid() bool {
	switch m {
	case CleanupDelete, CleanupSupersede, CleanupKeep:
		return true
	}
	return false
}

// CatalogEntry is a canonical catalog row, written by the catalog ingestion
// collaborator. The pipeline only reads it to validate extracted ids.
type CatalogEntry struct {
	CatalogID string
	Name      string
	Category  string
	Year      int
}

// CatalogJoin links a listing to a catalog entry via an extracted id.
// Active is what the supersede cleanup mode flips off on old rows.
type CatalogJoin struct {
	ID          int64
	ListingID   int64
	CatalogID   string
	ExtractedID string
	Version     string
	Active      bool
	CreatedAt   time.Time
}
