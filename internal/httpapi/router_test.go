package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpipe-engine/internal/config"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/events"
	"marketpipe-engine/internal/pipeline"
	"marketpipe-engine/internal/store"
)

type stubPipeline struct {
	reconcileParams pipeline.ReconcileParams
	stage           string
}

func (s *stubPipeline) RunAll(ctx context.Context) error { return nil }

func (s *stubPipeline) RunStage(ctx context.Context, stage string) (*domain.Job, error) {
	s.stage = stage
	return runningJob("job_stage"), nil
}

func (s *stubPipeline) RunReconcile(ctx context.Context, params pipeline.ReconcileParams) (*domain.Job, error) {
	s.reconcileParams = params
	return runningJob("job_rec"), nil
}

func runningJob(id string) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID: id, Type: "reconcile", Status: domain.JobCompleted,
		StartedAt: now, UpdatedAt: now, TimeoutAt: now.Add(15 * time.Minute),
	}
}

func newTestMux(t *testing.T) (*http.ServeMux, *stubPipeline, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	var cfgVal, pipeStatus atomic.Value
	cfgVal.Store(config.WithDefaults(config.Config{}))
	pipeStatus.Store(PipelineStatus{})

	stub := &stubPipeline{}
	mux := NewMux(Deps{
		Store:      st,
		Hub:        events.NewHub(),
		Pipeline:   stub,
		ReapNow:    func(ctx context.Context) ([]string, error) { return nil, nil },
		CfgVal:     &cfgVal,
		PipeStatus: &pipeStatus,
	})
	return mux, stub, st
}

func TestHealthEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestJobsEndpoints(t *testing.T) {
	mux, _, st := newTestMux(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, st.InsertJob(ctx, &domain.Job{
		ID: "job_1", Type: "capture", Marketplace: "mockmarket",
		Status: domain.JobRunning, StartedAt: now, UpdatedAt: now,
		TimeoutAt: now.Add(30 * time.Minute),
	}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []jobJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "job_1", jobs[0].ID)
	assert.Equal(t, "running", jobs[0].Status)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job_1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job_ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/jobs/job_1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunStageByPath(t *testing.T) {
	mux, stub, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pipeline/enrich/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enrich", stub.stage)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pipeline/transmogrify/run", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunReconcileValidation(t *testing.T) {
	mux, stub, _ := newTestMux(t)

	body := `{"reconciliationVersion":"2.0.0","cleanupMode":"delete","rerun":true,"listingIds":[4,5]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile/run", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.0.0", stub.reconcileParams.Version)
	assert.Equal(t, domain.CleanupDelete, stub.reconcileParams.CleanupMode)
	assert.True(t, stub.reconcileParams.Rerun)
	assert.Equal(t, []int64{4, 5}, stub.reconcileParams.ListingIDs)

	// bad cleanup mode rejected before the pipeline runs
	stub.reconcileParams = pipeline.ReconcileParams{}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile/run",
		strings.NewReader(`{"cleanupMode":"purge"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.reconcileParams.Version)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile/run",
		strings.NewReader(`{"limit":-3}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigGet(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "8471")
}
