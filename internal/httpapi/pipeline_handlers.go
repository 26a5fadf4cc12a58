package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/pipeline"
)

var validate = validator.New()

type PipelineHandler struct {
	Pipeline   PipelineRunner
	PipeStatus *atomic.Value // httpapi.PipelineStatus
}

func (h PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.PipeStatus.Load().(PipelineStatus)
	writeJSON(w, st)
}

// Run kicks off a full pipeline run in the background. A run already in
// flight is reported, not queued.
func (h PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	st := h.PipeStatus.Load().(PipelineStatus)
	if st.Running {
		writeJSON(w, map[string]any{"ok": false, "msg": "already running"})
		return
	}

	h.PipeStatus.Store(PipelineStatus{
		LastRunAt: time.Now().Format(time.RFC3339),
		Running:   true,
		LastOkAt:  st.LastOkAt,
	})

	go func() {
		err := h.Pipeline.RunAll(context.Background())

		now := time.Now().Format(time.RFC3339)
		next := h.PipeStatus.Load().(PipelineStatus)
		next.Running = false
		next.LastRunAt = now
		if err != nil {
			next.LastError = err.Error()
		} else {
			next.LastError = ""
			next.LastOkAt = now
		}
		h.PipeStatus.Store(next)
	}()

	writeJSON(w, map[string]any{"ok": true})
}

// RunStageByPath runs one stage synchronously; expects /pipeline/{stage}/run.
func (h PipelineHandler) RunStageByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/pipeline/")
	stage := strings.TrimSuffix(rest, "/run")
	if stage == rest || strings.Contains(stage, "/") {
		WriteError(w, r, http.StatusNotFound, "not_found", "expected /pipeline/{stage}/run")
		return
	}
	if !validStage(stage) {
		WriteError(w, r, http.StatusBadRequest, "invalid_stage", "unknown stage "+stage)
		return
	}

	job, err := h.Pipeline.RunStage(r.Context(), stage)
	if err != nil {
		h.writeStageResult(w, r, job, err)
		return
	}
	writeJSON(w, toJobJSON(job))
}

type reconcileReq struct {
	ListingIDs  []int64 `json:"listingIds" validate:"omitempty,dive,gt=0"`
	Limit       int     `json:"limit" validate:"omitempty,gt=0"`
	Version     string  `json:"reconciliationVersion" validate:"omitempty,max=64"`
	CleanupMode string  `json:"cleanupMode" validate:"omitempty,oneof=delete supersede keep"`
	Rerun       bool    `json:"rerun"`
	DatasetID   string  `json:"datasetId" validate:"omitempty,max=128"`
}

// RunReconcile runs a reconciliation pass synchronously with per-request
// overrides. An empty body uses the configured defaults.
func (h PipelineHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, err := h.Pipeline.RunReconcile(r.Context(), pipeline.ReconcileParams{
		ListingIDs:  req.ListingIDs,
		Limit:       req.Limit,
		Version:     req.Version,
		CleanupMode: domain.CleanupMode(req.CleanupMode),
		Rerun:       req.Rerun,
		DatasetID:   req.DatasetID,
	})
	if err != nil {
		h.writeStageResult(w, r, job, err)
		return
	}
	writeJSON(w, toJobJSON(job))
}

// writeStageResult reports a failed run. The job, when one was opened, rides
// along so the caller can inspect the ledger entry. Failure events go out
// through the ledger, not here.
func (h PipelineHandler) writeStageResult(w http.ResponseWriter, r *http.Request, job *domain.Job, err error) {
	body := map[string]any{"error": err.Error()}
	if job != nil {
		body["job"] = toJobJSON(job)
	}
	WriteJSON(w, http.StatusInternalServerError, body)
}

func validStage(stage string) bool {
	for _, s := range pipeline.StageOrder {
		if s == stage {
			return true
		}
	}
	return false
}
