package store

import (
	"context"
	"database/sql"
	"errors"

	"marketpipe-engine/internal/domain"
)

// GetCatalogEntry looks up a canonical catalog row. The reconciliation
// engine validates every extracted id through this read path.
func (s *Store) GetCatalogEntry(ctx context.Context, catalogID string) (*domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	err := s.db.QueryRowContext(ctx, `
SELECT catalog_id, name, category, year FROM catalog_entries WHERE catalog_id = ?;`,
		catalogID).Scan(&e.CatalogID, &e.Name, &e.Category, &e.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "catalog_entry", Key: catalogID}
	}
	if err != nil {
		return nil, classify("catalog.get", err)
	}
	return &e, nil
}

// UpsertCatalogEntry is the narrow write contract the catalog ingestion
// collaborator uses. The pipeline itself only reads.
func (s *Store) UpsertCatalogEntry(ctx context.Context, e *domain.CatalogEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO catalog_entries (catalog_id, name, category, year)
VALUES (?,?,?,?)
ON CONFLICT(catalog_id) DO UPDATE SET name = excluded.name,
  category = excluded.category, year = excluded.year;`,
		e.CatalogID, e.Name, e.Category, e.Year)
	return classify("catalog.upsert", err)
}
