package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"marketpipe-engine/internal/events"
)

const keepaliveInterval = 30 * time.Second

type EventsHandler struct {
	Hub *events.Hub
}

// ServeSSE streams job lifecycle events. A ping goes out immediately and
// then on every keepalive tick so proxies keep the connection open.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "streaming unsupported")
		return
	}

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	reqID := RequestIDFrom(r.Context())
	send := func(msg string) {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
		flusher.Flush()
	}
	send(events.MakeEvent(reqID, "ping", 1, nil))

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			send(events.MakeEvent(reqID, "ping", 1, nil))
		case msg := <-ch:
			send(msg)
		}
	}
}
