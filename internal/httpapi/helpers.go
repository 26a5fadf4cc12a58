package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
)

// writeJSON is the 200 OK shortcut; WriteJSON takes an explicit status.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// methodMux dispatches one path by HTTP method.
func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// localOnly rejects requests that did not arrive over loopback.
func localOnly(w http.ResponseWriter, r *http.Request) bool {
	if isLoopback(r.RemoteAddr) {
		return true
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return false
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

