package httpapi

import (
	"database/sql"
	"net/http"
)

type DBHandler struct {
	DB *sql.DB
}

// Checkpoint flushes the sqlite WAL. Loopback only; ?mode=truncate also
// resets the WAL file, the default FULL just syncs it.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !localOnly(w, r) {
		return
	}

	stmt := `PRAGMA wal_checkpoint(FULL);`
	if r.URL.Query().Get("mode") == "truncate" {
		stmt = `PRAGMA wal_checkpoint(TRUNCATE);`
	}
	if _, err := h.DB.Exec(stmt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
