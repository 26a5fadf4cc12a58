package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpipe-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return New(db)
}

func testJob(id, jobType string, started time.Time) *domain.Job {
	return &domain.Job{
		ID:          id,
		Type:        jobType,
		Marketplace: "mockmarket",
		Status:      domain.JobRunning,
		StartedAt:   started,
		UpdatedAt:   started,
		TimeoutAt:   started.Add(30 * time.Minute),
	}
}

func TestJobRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	j := testJob("job_abc", "capture", now)
	j.Metadata = map[string]any{"query": "vintage"}
	require.NoError(t, st.InsertJob(ctx, j))

	got, err := st.GetJob(ctx, "job_abc")
	require.NoError(t, err)
	assert.Equal(t, "capture", got.Type)
	assert.Equal(t, domain.JobRunning, got.Status)
	assert.Equal(t, "vintage", got.Metadata["query"])
	assert.True(t, got.TimeoutAt.Equal(now.Add(30*time.Minute)))
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetJob(context.Background(), "job_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsCritical(err))
}

func TestUpdateJobProgressIsAdditive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.InsertJob(ctx, testJob("job_p", "capture", now)))

	five, two := 5, 2
	require.NoError(t, st.UpdateJobProgress(ctx, "job_p", "first", domain.StatsDelta{Found: &five}))
	require.NoError(t, st.UpdateJobProgress(ctx, "job_p", "second", domain.StatsDelta{Found: &two, New: &two}))

	got, err := st.GetJob(ctx, "job_p")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stats.Found)
	assert.Equal(t, 2, got.Stats.New)
	assert.Equal(t, "second", got.LastUpdate)
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.InsertJob(ctx, testJob("job_t", "enrich", now)))

	require.NoError(t, st.CompleteJob(ctx, "job_t", domain.JobStats{Found: 1}, "done", nil))

	err := st.FailJob(ctx, "job_t", "too late")
	assert.ErrorIs(t, err, ErrJobNotRunning)

	err = st.CompleteJob(ctx, "job_t", domain.JobStats{}, "again", nil)
	assert.ErrorIs(t, err, ErrJobNotRunning)

	one := 1
	err = st.UpdateJobProgress(ctx, "job_t", "late", domain.StatsDelta{Found: &one})
	assert.ErrorIs(t, err, ErrJobNotRunning)

	got, err := st.GetJob(ctx, "job_t")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, 1, got.Stats.Found)
	assert.Equal(t, "done", got.LastUpdate)
}

func TestGetRunningJobPicksNewest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := testJob("job_old", "capture", now.Add(-time.Hour))
	require.NoError(t, st.InsertJob(ctx, old))
	require.NoError(t, st.CompleteJob(ctx, "job_old", domain.JobStats{}, "done", nil))

	require.NoError(t, st.InsertJob(ctx, testJob("job_a", "capture", now.Add(-10*time.Minute))))
	require.NoError(t, st.InsertJob(ctx, testJob("job_b", "capture", now)))

	got, err := st.GetRunningJob(ctx, "capture", "mockmarket")
	require.NoError(t, err)
	assert.Equal(t, "job_b", got.ID)

	_, err = st.GetRunningJob(ctx, "reconcile", "mockmarket")
	assert.True(t, IsNotFound(err))
}

func TestFailStaleJobs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// stopped updating 20 minutes ago
	stale := testJob("job_stale", "capture", now.Add(-25*time.Minute))
	stale.UpdatedAt = now.Add(-20 * time.Minute)
	stale.TimeoutAt = now.Add(10 * time.Minute)
	require.NoError(t, st.InsertJob(ctx, stale))

	// healthy: updated just now
	fresh := testJob("job_fresh", "capture", now.Add(-5*time.Minute))
	fresh.UpdatedAt = now
	fresh.TimeoutAt = now.Add(25 * time.Minute)
	require.NoError(t, st.InsertJob(ctx, fresh))

	ids, err := st.FailStaleJobs(ctx, now.Add(-10*time.Minute), now, now.Add(-6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"job_stale"}, ids)

	got, err := st.GetJob(ctx, "job_stale")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "timed out after")
	require.NotNil(t, got.CompletedAt)

	// second sweep finds nothing, the transition is one-way
	ids, err = st.FailStaleJobs(ctx, now.Add(-10*time.Minute), now, now.Add(-6*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	gotFresh, err := st.GetJob(ctx, "job_fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, gotFresh.Status)
}

func TestListingNaturalKeyUnique(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	l := &domain.Listing{
		Marketplace: "mockmarket",
		ExternalID:  "m0000001",
		Title:       "first",
		Price:       100,
		Status:      domain.ListingActive,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	added, err := st.InsertListingIgnore(ctx, l)
	require.NoError(t, err)
	assert.True(t, added)

	dup := *l
	dup.Title = "second"
	added, err = st.InsertListingIgnore(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, added)

	id, err := st.FindListingID(ctx, l.Key())
	require.NoError(t, err)
	got, err := st.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func TestStepResultFirstWriteWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordStepResult(ctx, "job_x", "capture-batch-001", []byte(`{"processed":3}`)))
	require.NoError(t, st.RecordStepResult(ctx, "job_x", "capture-batch-001", []byte(`{"processed":9}`)))

	raw, found, err := st.GetStepResult(ctx, "job_x", "capture-batch-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"processed":3}`, string(raw))

	_, found, err = st.GetStepResult(ctx, "job_x", "capture-batch-002")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListNeedingReconciliation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	insert := func(ext string) int64 {
		l := &domain.Listing{
			Marketplace: "mockmarket",
			ExternalID:  ext,
			Title:       ext,
			Status:      domain.ListingActive,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		added, err := st.InsertListingIgnore(ctx, l)
		require.NoError(t, err)
		require.True(t, added)
		id, err := st.FindListingID(ctx, l.Key())
		require.NoError(t, err)
		return id
	}

	a := insert("a")
	b := insert("b")
	c := insert("c")

	// a was reconciled at the current version, b at an older one
	require.NoError(t, st.StampReconciled(ctx, a, "1.1.0", now))
	require.NoError(t, st.StampReconciled(ctx, b, "1.0.0", now))

	ids, err := st.ListNeedingReconciliation(ctx, "1.1.0", false, "", 100, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{b, c}, ids)

	// rerun also reselects the current version
	ids, err = st.ListNeedingReconciliation(ctx, "1.1.0", true, "", 100, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, b, c}, ids)

	// explicit ids override selection entirely
	ids, err = st.ListNeedingReconciliation(ctx, "1.1.0", false, "", 100, []int64{a})
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, ids)
}
