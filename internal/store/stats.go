package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ListingStat is one analyze-stage output row: price aggregates for every
// listing actively joined to a catalog entry.
type ListingStat struct {
	CatalogID    string
	ListingCount int
	ActiveCount  int
	MinPrice     int
	MedianPrice  int
	MaxPrice     int
	ComputedAt   time.Time
}

// ReplaceListingStat overwrites the stat row for one catalog entry, which
// makes analyze replays converge on the same result.
func (s *Store) ReplaceListingStat(ctx context.Context, st *ListingStat) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO listing_stats
  (catalog_id, listing_count, active_count, min_price, median_price, max_price, computed_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(catalog_id) DO UPDATE SET
  listing_count = excluded.listing_count,
  active_count = excluded.active_count,
  min_price = excluded.min_price,
  median_price = excluded.median_price,
  max_price = excluded.max_price,
  computed_at = excluded.computed_at;`,
		st.CatalogID, st.ListingCount, st.ActiveCount,
		st.MinPrice, st.MedianPrice, st.MaxPrice, fmtTime(st.ComputedAt))
	return classify("stats.replace", err)
}

func (s *Store) GetListingStat(ctx context.Context, catalogID string) (*ListingStat, error) {
	var (
		st         ListingStat
		computedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT catalog_id, listing_count, active_count, min_price, median_price, max_price, computed_at
FROM listing_stats WHERE catalog_id = ?;`, catalogID).
		Scan(&st.CatalogID, &st.ListingCount, &st.ActiveCount,
			&st.MinPrice, &st.MedianPrice, &st.MaxPrice, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "listing_stat", Key: catalogID}
	}
	if err != nil {
		return nil, classify("stats.get", err)
	}
	st.ComputedAt = parseTime(computedAt)
	return &st, nil
}
