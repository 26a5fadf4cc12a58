package httpapi

import (
	"net/http"
	"time"
)

var startedAt = time.Now().UTC()

type HealthHandler struct{}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"service":   "marketpipe-engine",
		"uptime_s":  int(time.Since(startedAt).Seconds()),
		"server_at": time.Now().UTC().Format(time.RFC3339),
	})
}
