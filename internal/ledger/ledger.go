// Package ledger is the durable record of pipeline-stage runs: one job row
// per run, a throttled progress tracker on top of it, and a reaper that
// force-fails runs that stopped making progress.
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"marketpipe-engine/internal/domain"
)

// JobStore is the slice of the relational store the ledger writes through.
type JobStore interface {
	InsertJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	UpdateJobProgress(ctx context.Context, id, message string, delta domain.StatsDelta) error
	CompleteJob(ctx context.Context, id string, stats domain.JobStats, message string, metadata map[string]any) error
	FailJob(ctx context.Context, id, message string) error
}

// Per-type timeout table. Unknown types fall back to defaultTimeout.
var jobTimeouts = map[string]time.Duration{
	"capture":     30 * time.Minute,
	"materialize": 30 * time.Minute,
	"enrich":      60 * time.Minute,
	"sanitize":    30 * time.Minute,
	"reconcile":   15 * time.Minute,
	"analyze":     15 * time.Minute,
}

const defaultTimeout = 30 * time.Minute

// TimeoutFor returns the ledger timeout for a job type.
func TimeoutFor(jobType string) time.Duration {
	if d, ok := jobTimeouts[jobType]; ok {
		return d
	}
	return defaultTimeout
}

type Ledger struct {
	jobs JobStore
	now  func() time.Time

	// OnEvent, when set, is called after every successful state change
	// (kind: job.created/job.progress/job.completed/job.failed). Used to
	// feed the SSE hub.
	OnEvent func(kind string, job *domain.Job)
}

func New(jobs JobStore) *Ledger {
	return &Ledger{jobs: jobs, now: func() time.Time { return time.Now().UTC() }}
}

// CreateJob opens a running job with timeout_at derived from the type table.
func (l *Ledger) CreateJob(ctx context.Context, jobType, marketplace string, metadata map[string]any, datasetID string) (*domain.Job, error) {
	now := l.now()
	j := &domain.Job{
		ID:          "job_" + uuid.NewString(),
		Type:        jobType,
		Marketplace: marketplace,
		Status:      domain.JobRunning,
		StartedAt:   now,
		UpdatedAt:   now,
		TimeoutAt:   now.Add(TimeoutFor(jobType)),
		Metadata:    metadata,
		DatasetID:   datasetID,
	}
	if err := l.jobs.InsertJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create %s job: %w", jobType, err)
	}
	log.Printf("[ledger] created %s job %s (marketplace=%s timeout=%s)",
		jobType, j.ID, marketplace, TimeoutFor(jobType))
	l.emit("job.created", j)
	return j, nil
}

// UpdateProgress never fails the caller: progress is diagnostic, not
// correctness-critical, so a persistence error is logged and swallowed.
func (l *Ledger) UpdateProgress(ctx context.Context, jobID, message string, delta domain.StatsDelta) {
	if err := l.jobs.UpdateJobProgress(ctx, jobID, message, delta); err != nil {
		log.Printf("[ledger] progress write failed job=%s: %v", jobID, err)
		return
	}
	l.emit("job.progress", &domain.Job{ID: jobID, LastUpdate: message})
}

// CompleteJob transitions running→completed. Terminal; the store rejects any
// later transition.
func (l *Ledger) CompleteJob(ctx context.Context, jobID string, stats domain.JobStats, message string, metadata map[string]any) error {
	if err := l.jobs.CompleteJob(ctx, jobID, stats, message, metadata); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	log.Printf("[ledger] job %s completed: %s (found=%d new=%d updated=%d)",
		jobID, message, stats.Found, stats.New, stats.Updated)
	l.emit("job.completed", &domain.Job{ID: jobID, Status: domain.JobCompleted})
	return nil
}

// FailJob transitions running→failed.
func (l *Ledger) FailJob(ctx context.Context, jobID, message string) error {
	if err := l.jobs.FailJob(ctx, jobID, message); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	log.Printf("[ledger] job %s failed: %s", jobID, message)
	l.emit("job.failed", &domain.Job{ID: jobID, Status: domain.JobFailed, ErrorMessage: message})
	return nil
}

func (l *Ledger) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return l.jobs.GetJob(ctx, jobID)
}

func (l *Ledger) emit(kind string, j *domain.Job) {
	if l.OnEvent != nil {
		l.OnEvent(kind, j)
	}
}
