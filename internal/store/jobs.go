package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"marketpipe-engine/internal/domain"
)

// ErrJobNotRunning is returned when a state change targets a job that is
// already terminal. Terminal rows are immutable.
var ErrJobNotRunning = errors.New("job is not running")

const jobFields = `id, type, marketplace, status, found, new_count, updated_count,
started_at, updated_at, completed_at, timeout_at, last_update, error_message, metadata, dataset_id`

func (s *Store) InsertJob(ctx context.Context, j *domain.Job) error {
	meta, err := json.Marshal(j.Metadata)
	if err != nil {
		return classify("jobs.insert", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, type, marketplace, status, found, new_count, updated_count,
  started_at, updated_at, timeout_at, last_update, error_message, metadata, dataset_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		j.ID, j.Type, j.Marketplace, string(j.Status),
		j.Stats.Found, j.Stats.New, j.Stats.Updated,
		fmtTime(j.StartedAt), fmtTime(j.UpdatedAt), fmtTime(j.TimeoutAt),
		j.LastUpdate, j.ErrorMessage, string(meta), j.DatasetID,
	)
	return classify("jobs.insert", err)
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+jobFields+` FROM jobs WHERE id = ?;`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "job", Key: id}
	}
	if err != nil {
		return nil, classify("jobs.get", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobFields+` FROM jobs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, classify("jobs.list", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, classify("jobs.list", err)
		}
		out = append(out, *j)
	}
	return out, classify("jobs.list", rows.Err())
}

// LatestJobID returns the most recently started job of the given type, in
// any status. Used to resume stage chaining (materialize reads the payloads
// of the newest capture run).
func (s *Store) LatestJobID(ctx context.Context, jobType, marketplace string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM jobs
WHERE type = ? AND marketplace = ?
ORDER BY started_at DESC LIMIT 1;`, jobType, marketplace).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &NotFoundError{Kind: "job", Key: jobType + "/" + marketplace}
	}
	return id, classify("jobs.latest", err)
}

// GetRunningJob returns the newest still-running job of the given type, if
// any. Stage runs adopt such a job instead of opening a second one, which
// is what lets a replayed stage resume its own checkpoint journal.
func (s *Store) GetRunningJob(ctx context.Context, jobType, marketplace string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+jobFields+` FROM jobs
WHERE type = ? AND marketplace = ? AND status = 'running'
ORDER BY started_at DESC LIMIT 1;`, jobType, marketplace)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "job", Key: jobType + "/" + marketplace}
	}
	if err != nil {
		return nil, classify("jobs.get_running", err)
	}
	return j, nil
}

// UpdateJobProgress additively merges a counters delta and refreshes the
// progress message and timestamps. Only running jobs accept progress.
func (s *Store) UpdateJobProgress(ctx context.Context, id, message string, delta domain.StatsDelta) error {
	now := fmtTime(s.now())
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET found = found + ?,
    new_count = new_count + ?,
    updated_count = updated_count + ?,
    last_update = ?,
    updated_at = ?
WHERE id = ? AND status = 'running';`,
		intOrZero(delta.Found), intOrZero(delta.New), intOrZero(delta.Updated),
		message, now, id,
	)
	if err != nil {
		return classify("jobs.progress", err)
	}
	return s.requireRunning(ctx, res, id)
}

// CompleteJob transitions running→completed, setting final counters and an
// optional metadata replacement (per-item errors get preserved there).
func (s *Store) CompleteJob(ctx context.Context, id string, stats domain.JobStats, message string, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return classify("jobs.complete", err)
	}
	now := fmtTime(s.now())
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'completed',
    found = ?, new_count = ?, updated_count = ?,
    last_update = ?,
    metadata = ?,
    completed_at = ?,
    updated_at = ?
WHERE id = ? AND status = 'running';`,
		stats.Found, stats.New, stats.Updated, message, string(meta), now, now, id,
	)
	if err != nil {
		return classify("jobs.complete", err)
	}
	return s.requireRunning(ctx, res, id)
}

// FailJob transitions running→failed.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	now := fmtTime(s.now())
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs
SET status = 'failed',
    error_message = ?,
    completed_at = ?,
    updated_at = ?
WHERE id = ? AND status = 'running';`,
		message, now, now, id,
	)
	if err != nil {
		return classify("jobs.fail", err)
	}
	return s.requireRunning(ctx, res, id)
}

// FailStaleJobs force-fails every running job that stopped updating before
// staleBefore, blew past its timeout_at, or started before startedBefore.
// One conditional UPDATE, so concurrent reapers cannot fail a job twice:
// the second invocation finds no matching rows. The synthetic message is
// computed from elapsed runtime inside the same statement.
func (s *Store) FailStaleJobs(ctx context.Context, staleBefore, timeoutBefore, startedBefore time.Time) ([]string, error) {
	now := fmtTime(s.now())
	rows, err := s.db.QueryContext(ctx, `
UPDATE jobs
SET status = 'failed',
    error_message = 'timed out after ' ||
        CAST(ROUND((julianday(?) - julianday(started_at)) * 1440) AS INTEGER) || 'm',
    completed_at = ?,
    updated_at = ?
WHERE status = 'running'
  AND (updated_at < ? OR timeout_at < ? OR started_at < ?)
RETURNING id;`,
		now, now, now,
		fmtTime(staleBefore), fmtTime(timeoutBefore), fmtTime(startedBefore),
	)
	if err != nil {
		return nil, classify("jobs.fail_stale", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids, classify("jobs.fail_stale", err)
		}
		ids = append(ids, id)
	}
	return ids, classify("jobs.fail_stale", rows.Err())
}

// requireRunning turns a zero-row conditional update into the right error:
// missing row → NotFoundError, terminal row → ErrJobNotRunning.
func (s *Store) requireRunning(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("jobs.update", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return ErrJobNotRunning
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var (
		j                              domain.Job
		status                         string
		startedAt, updatedAt, timeoutAt string
		completedAt                    sql.NullString
		meta                           string
	)
	if err := r.Scan(
		&j.ID, &j.Type, &j.Marketplace, &status,
		&j.Stats.Found, &j.Stats.New, &j.Stats.Updated,
		&startedAt, &updatedAt, &completedAt, &timeoutAt,
		&j.LastUpdate, &j.ErrorMessage, &meta, &j.DatasetID,
	); err != nil {
		return nil, err
	}
	j.Status = domain.JobStatus(status)
	j.StartedAt = parseTime(startedAt)
	j.UpdatedAt = parseTime(updatedAt)
	j.TimeoutAt = parseTime(timeoutAt)
	j.CompletedAt = parseNullTime(completedAt)
	_ = json.Unmarshal([]byte(meta), &j.Metadata)
	return &j, nil
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
