package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/events"
	"marketpipe-engine/internal/store"
)

type JobsHandler struct {
	Store   *store.Store
	Hub     *events.Hub
	ReapNow func(ctx context.Context) ([]string, error)
}

// jobJSON is the wire shape for ledger entries. Terminal jobs keep their
// stats and metadata verbatim; timestamps go out as RFC3339.
type jobJSON struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Marketplace string         `json:"marketplace,omitempty"`
	Status      string         `json:"status"`
	Found       int            `json:"found"`
	New         int            `json:"new"`
	Updated     int            `json:"updated"`
	StartedAt   string         `json:"started_at"`
	UpdatedAt   string         `json:"updated_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	TimeoutAt   string         `json:"timeout_at"`
	LastUpdate  string         `json:"last_update,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	DatasetID   string         `json:"dataset_id,omitempty"`
}

func toJobJSON(j *domain.Job) jobJSON {
	out := jobJSON{
		ID:          j.ID,
		Type:        j.Type,
		Marketplace: j.Marketplace,
		Status:      string(j.Status),
		Found:       j.Stats.Found,
		New:         j.Stats.New,
		Updated:     j.Stats.Updated,
		StartedAt:   j.StartedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
		TimeoutAt:   j.TimeoutAt.Format(time.RFC3339),
		LastUpdate:  j.LastUpdate,
		Error:       j.ErrorMessage,
		Metadata:    j.Metadata,
		DatasetID:   j.DatasetID,
	}
	if j.CompletedAt != nil {
		out.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.Store.ListJobs(r.Context(), limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	out := make([]jobJSON, len(jobs))
	for i := range jobs {
		out[i] = toJobJSON(&jobs[i])
	}
	writeJSON(w, out)
}

func (h JobsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid job id")
		return
	}

	job, err := h.Store.GetJob(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			WriteError(w, r, http.StatusNotFound, "not_found", "no such job")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, toJobJSON(job))
}

func (h JobsHandler) Reap(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ReapNow(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reap_error", err.Error())
		return
	}
	if len(ids) > 0 {
		reqID := RequestIDFrom(r.Context())
		h.Hub.Publish(events.MakeEvent(reqID, events.JobsReaped, 1, map[string]any{"ids": ids}))
	}
	writeJSON(w, map[string]any{"reaped": ids})
}
