package store

import (
	"context"

	"marketpipe-engine/internal/domain"
)

func (s *Store) ListJoins(ctx context.Context, listingID int64) ([]domain.CatalogJoin, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, listing_id, catalog_id, extracted_id, version, active, created_at
FROM catalog_joins WHERE listing_id = ? ORDER BY id;`, listingID)
	if err != nil {
		return nil, classify("joins.list", err)
	}
	defer rows.Close()

	var out []domain.CatalogJoin
	for rows.Next() {
		var (
			j         domain.CatalogJoin
			active    int
			createdAt string
		)
		if err := rows.Scan(&j.ID, &j.ListingID, &j.CatalogID, &j.ExtractedID,
			&j.Version, &active, &createdAt); err != nil {
			return nil, classify("joins.list", err)
		}
		j.Active = active == 1
		j.CreatedAt = parseTime(createdAt)
		out = append(out, j)
	}
	return out, classify("joins.list", rows.Err())
}

func (s *Store) InsertJoin(ctx context.Context, j *domain.CatalogJoin) error {
	active := 0
	if j.Active {
		active = 1
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO catalog_joins (listing_id, catalog_id, extracted_id, version, active, created_at)
VALUES (?,?,?,?,?,?);`,
		j.ListingID, j.CatalogID, j.ExtractedID, j.Version, active, fmtTime(j.CreatedAt))
	if err != nil {
		return classify("joins.insert", err)
	}
	j.ID, _ = res.LastInsertId()
	return nil
}

// DeleteJoins removes a listing's prior joins outright (cleanup mode delete).
func (s *Store) DeleteJoins(ctx context.Context, listingID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM catalog_joins WHERE listing_id = ?;`, listingID)
	if err != nil {
		return 0, classify("joins.delete", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeactivateJoins flags a listing's prior joins inactive (cleanup mode
// supersede); rows stay behind as history.
func (s *Store) DeactivateJoins(ctx context.Context, listingID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE catalog_joins SET active = 0 WHERE listing_id = ? AND active = 1;`, listingID)
	if err != nil {
		return 0, classify("joins.deactivate", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListJoinedCatalogIDs returns the distinct catalog ids that have at least
// one active join; the analyze stage recomputes stats for each.
func (s *Store) ListJoinedCatalogIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT catalog_id FROM catalog_joins WHERE active = 1 ORDER BY catalog_id;`)
	if err != nil {
		return nil, classify("joins.catalog_ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("joins.catalog_ids", err)
		}
		out = append(out, id)
	}
	return out, classify("joins.catalog_ids", rows.Err())
}

// ListingPrice pairs a joined listing's price with its lifecycle status.
type ListingPrice struct {
	Price  int
	Status domain.ListingStatus
}

// ListJoinedPrices returns price/status rows for every listing actively
// joined to the catalog entry, ordered by price for median computation.
func (s *Store) ListJoinedPrices(ctx context.Context, catalogID string) ([]ListingPrice, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT l.price, l.status
FROM catalog_joins cj
JOIN listings l ON l.id = cj.listing_id
WHERE cj.catalog_id = ? AND cj.active = 1
ORDER BY l.price;`, catalogID)
	if err != nil {
		return nil, classify("joins.prices", err)
	}
	defer rows.Close()

	var out []ListingPrice
	for rows.Next() {
		var (
			p      ListingPrice
			status string
		)
		if err := rows.Scan(&p.Price, &status); err != nil {
			return nil, classify("joins.prices", err)
		}
		p.Status = domain.ListingStatus(status)
		out = append(out, p)
	}
	return out, classify("joins.prices", rows.Err())
}
