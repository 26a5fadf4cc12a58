package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketpipe-engine/internal/domain"
)

// InsertPayload records one upstream response verbatim. Payloads are
// append-only; nothing in the pipeline updates them.
func (s *Store) InsertPayload(ctx context.Context, p *domain.RawPayload) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO raw_payloads (job_id, marketplace, kind, page, body, fetched_at)
VALUES (?,?,?,?,?,?);`,
		p.JobID, p.Marketplace, p.Kind, p.Page, p.Body, fmtTime(p.FetchedAt))
	if err != nil {
		return 0, classify("payloads.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("payloads.insert", err)
	}
	p.ID = id
	return id, nil
}

func (s *Store) GetPayload(ctx context.Context, id int64) (*domain.RawPayload, error) {
	var (
		p         domain.RawPayload
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, job_id, marketplace, kind, page, body, fetched_at
FROM raw_payloads WHERE id = ?;`, id).
		Scan(&p.ID, &p.JobID, &p.Marketplace, &p.Kind, &p.Page, &p.Body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "payload", Key: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, classify("payloads.get", err)
	}
	p.FetchedAt = parseTime(fetchedAt)
	return &p, nil
}

// ListPayloadIDs returns the search payloads captured by one job, in fetch
// order. These are the materialize stage's work items.
func (s *Store) ListPayloadIDs(ctx context.Context, jobID, kind string) ([]int64, error) {
	return s.listIDs(ctx, "payloads.list", `
SELECT id FROM raw_payloads WHERE job_id = ? AND kind = ? ORDER BY id;`, jobID, kind)
}
