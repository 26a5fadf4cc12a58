package ledger

import (
	"context"
	"time"

	"marketpipe-engine/internal/domain"
)

const (
	defaultMilestoneInterval = 10
	defaultTimeInterval      = 5 * time.Second
)

// Tracker throttles progress emission for one job: it counts every processed
// item but only writes through to the ledger on milestones, elapsed time, or
// when forced. Emission is best-effort like the ledger call underneath.
type Tracker struct {
	ledger *Ledger
	jobID  string

	milestoneInterval int
	timeInterval      time.Duration

	processed  int
	lastUpdate time.Time
	now        func() time.Time
}

func NewTracker(l *Ledger, jobID string) *Tracker {
	t := &Tracker{
		ledger:            l,
		jobID:             jobID,
		milestoneInterval: defaultMilestoneInterval,
		timeInterval:      defaultTimeInterval,
		now:               func() time.Time { return time.Now().UTC() },
	}
	t.lastUpdate = t.now()
	return t
}

// RecordProgress counts one processed item and emits iff force is set, the
// count hits a milestone, or enough time passed since the last emission.
func (t *Tracker) RecordProgress(ctx context.Context, message string, delta domain.StatsDelta, force bool) {
	t.processed++

	milestone := t.milestoneInterval > 0 && t.processed%t.milestoneInterval == 0
	elapsed := t.now().Sub(t.lastUpdate) >= t.timeInterval

	if force || milestone || elapsed {
		t.emit(ctx, message, delta)
	}
}

// ForceUpdate always emits and resets the timer. Used at batch boundaries
// and phase transitions where the message must land.
func (t *Tracker) ForceUpdate(ctx context.Context, message string, delta domain.StatsDelta) {
	t.emit(ctx, message, delta)
}

// Reset zeroes the counter and timer at a phase boundary so milestone
// counting restarts per phase.
func (t *Tracker) Reset() {
	t.processed = 0
	t.lastUpdate = t.now()
}

func (t *Tracker) Processed() int { return t.processed }

func (t *Tracker) emit(ctx context.Context, message string, delta domain.StatsDelta) {
	t.ledger.UpdateProgress(ctx, t.jobID, message, delta)
	t.lastUpdate = t.now()
}
