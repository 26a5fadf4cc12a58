package ledger

import (
	"context"
	"log"
	"time"
)

// StaleJobStore is the single atomic operation the reaper needs: a
// conditional update-and-return that marks matching running jobs failed.
type StaleJobStore interface {
	FailStaleJobs(ctx context.Context, staleBefore, timeoutBefore, startedBefore time.Time) ([]string, error)
}

// Reaper force-fails running jobs that stopped updating, blew past their
// timeout_at, or exceeded the hard max runtime. Safe to run concurrently
// and repeatedly: the store transition is atomic, so a job failed by one
// invocation is gone from the next invocation's candidate set.
type Reaper struct {
	jobs       StaleJobStore
	staleAfter time.Duration
	maxRuntime time.Duration
	now        func() time.Time
}

func NewReaper(jobs StaleJobStore, staleAfter, maxRuntime time.Duration) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if maxRuntime <= 0 {
		maxRuntime = 6 * time.Hour
	}
	return &Reaper{
		jobs:       jobs,
		staleAfter: staleAfter,
		maxRuntime: maxRuntime,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one sweep and returns the ids it marked failed.
func (r *Reaper) Run(ctx context.Context) ([]string, error) {
	now := r.now()
	ids, err := r.jobs.FailStaleJobs(ctx, now.Add(-r.staleAfter), now, now.Add(-r.maxRuntime))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		log.Printf("[reaper] marked stale job %s as failed", id)
	}
	return ids, nil
}
