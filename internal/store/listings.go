package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketpipe-engine/internal/domain"
)

const listingFields = `id, marketplace, external_id, title, price, url, location, postal_code,
status, description, description_clean, first_seen_at, last_seen_at,
enriched_at, sanitized_at, reconciled_at, reconciliation_version, dataset_id`

// FindListingID resolves a natural key to the persisted row id.
func (s *Store) FindListingID(ctx context.Context, key domain.ListingKey) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM listings WHERE marketplace = ? AND external_id = ?;`,
		key.Marketplace, key.ExternalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &NotFoundError{Kind: "listing", Key: key.String()}
	}
	return id, classify("listings.find", err)
}

// InsertListingIgnore inserts a listing unless its natural key already
// exists; the unique index is the last-line guard against replayed batches.
// Reports whether a row was actually added.
func (s *Store) InsertListingIgnore(ctx context.Context, l *domain.Listing) (added bool, err error) {
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO listings
  (marketplace, external_id, title, price, url, location, postal_code, status,
   description, first_seen_at, last_seen_at, dataset_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`,
		l.Marketplace, l.ExternalID, l.Title, l.Price, l.URL, l.Location, l.PostalCode,
		string(l.Status), l.Description, fmtTime(l.FirstSeenAt), fmtTime(l.LastSeenAt), l.DatasetID,
	)
	if err != nil {
		return false, classify("listings.insert", err)
	}

	// RowsAffected comes off the insert's own statement, so it stays
	// correct even when the pool recycles connections.
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("listings.insert", err)
	}
	return n > 0, nil
}

func (s *Store) GetListing(ctx context.Context, id int64) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+listingFields+` FROM listings WHERE id = ?;`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "listing", Key: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, classify("listings.get", err)
	}
	return l, nil
}

// TouchLastSeen refreshes last_seen_at on already-known listings that showed
// up again in a capture run.
func (s *Store) TouchLastSeen(ctx context.Context, ids []int64, t time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, fmtTime(t))
	for _, id := range ids {
		args = append(args, id)
	}
	q := fmt.Sprintf(`UPDATE listings SET last_seen_at = ? WHERE id IN (%s);`,
		placeholders(len(ids)))
	_, err := s.db.ExecContext(ctx, q, args...)
	return classify("listings.touch", err)
}

// UpdateListingDetail applies enrichment output and stamps enriched_at.
func (s *Store) UpdateListingDetail(ctx context.Context, id int64, title string, price int, location, postalCode, description string, status domain.ListingStatus, enrichedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE listings
SET title = ?, price = ?, location = ?, postal_code = ?, description = ?,
    status = ?, enriched_at = ?
WHERE id = ?;`,
		title, price, location, postalCode, description, string(status), fmtTime(enrichedAt), id)
	return classify("listings.enrich", err)
}

// UpdateListingClean stores sanitizer output and stamps sanitized_at.
func (s *Store) UpdateListingClean(ctx context.Context, id int64, clean string, sanitizedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE listings SET description_clean = ?, sanitized_at = ? WHERE id = ?;`,
		clean, fmtTime(sanitizedAt), id)
	return classify("listings.sanitize", err)
}

// StampReconciled records which ruleset version last processed the listing.
// A zero-extraction listing gets stamped like any other.
func (s *Store) StampReconciled(ctx context.Context, id int64, version string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE listings SET reconciled_at = ?, reconciliation_version = ? WHERE id = ?;`,
		fmtTime(at), version, id)
	return classify("listings.stamp", err)
}

func (s *Store) UpdateListingStatus(ctx context.Context, id int64, status domain.ListingStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE listings SET status = ? WHERE id = ?;`,
		string(status), id)
	return classify("listings.status", err)
}

// ListNeedingEnrichment returns ids of listings never enriched, oldest first.
func (s *Store) ListNeedingEnrichment(ctx context.Context, datasetID string, limit int) ([]int64, error) {
	q := `SELECT id FROM listings WHERE enriched_at IS NULL`
	args := []any{}
	if datasetID != "" {
		q += ` AND dataset_id = ?`
		args = append(args, datasetID)
	}
	q += ` ORDER BY id LIMIT ?;`
	args = append(args, normLimit(limit))
	return s.listIDs(ctx, "listings.need_enrich", q, args...)
}

// ListNeedingSanitize returns ids with a description but no sanitized copy.
func (s *Store) ListNeedingSanitize(ctx context.Context, datasetID string, limit int) ([]int64, error) {
	q := `SELECT id FROM listings WHERE description != '' AND sanitized_at IS NULL`
	args := []any{}
	if datasetID != "" {
		q += ` AND dataset_id = ?`
		args = append(args, datasetID)
	}
	q += ` ORDER BY id LIMIT ?;`
	args = append(args, normLimit(limit))
	return s.listIDs(ctx, "listings.need_sanitize", q, args...)
}

// ListNeedingReconciliation implements the selection policy: never
// reconciled, reconciled under a different version, or (when rerun is set)
// reconciled under the current version too.
func (s *Store) ListNeedingReconciliation(ctx context.Context, version string, rerun bool, datasetID string, limit int, listingIDs []int64) ([]int64, error) {
	if len(listingIDs) > 0 {
		q := fmt.Sprintf(`SELECT id FROM listings WHERE id IN (%s) ORDER BY id;`,
			placeholders(len(listingIDs)))
		args := make([]any, len(listingIDs))
		for i, id := range listingIDs {
			args[i] = id
		}
		return s.listIDs(ctx, "listings.need_reconcile", q, args...)
	}

	q := `SELECT id FROM listings WHERE (reconciled_at IS NULL OR reconciliation_version != ?`
	args := []any{version}
	if rerun {
		q += ` OR reconciliation_version = ?`
		args = append(args, version)
	}
	q += `)`
	if datasetID != "" {
		q += ` AND dataset_id = ?`
		args = append(args, datasetID)
	}
	q += ` ORDER BY id LIMIT ?;`
	args = append(args, normLimit(limit))
	return s.listIDs(ctx, "listings.need_reconcile", q, args...)
}

func (s *Store) listIDs(ctx context.Context, op, q string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, id)
	}
	return out, classify(op, rows.Err())
}

func scanListing(r rowScanner) (*domain.Listing, error) {
	var (
		l                         domain.Listing
		status                    string
		firstSeen, lastSeen       string
		enriched, sanitized, reco sql.NullString
	)
	if err := r.Scan(
		&l.ID, &l.Marketplace, &l.ExternalID, &l.Title, &l.Price, &l.URL,
		&l.Location, &l.PostalCode, &status, &l.Description, &l.DescriptionClean,
		&firstSeen, &lastSeen, &enriched, &sanitized, &reco,
		&l.ReconciliationVersion, &l.DatasetID,
	); err != nil {
		return nil, err
	}
	l.Status = domain.ListingStatus(status)
	l.FirstSeenAt = parseTime(firstSeen)
	l.LastSeenAt = parseTime(lastSeen)
	l.EnrichedAt = parseNullTime(enriched)
	l.SanitizedAt = parseNullTime(sanitized)
	l.ReconciledAt = parseNullTime(reco)
	return &l, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 10000 {
		return 10000
	}
	return limit
}
