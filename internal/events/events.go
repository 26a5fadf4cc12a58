package events

import (
	"encoding/json"
	"time"
)

// Event kinds published over the SSE stream.
const (
	JobCreated   = "job.created"
	JobProgress  = "job.progress"
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
	JobsReaped   = "jobs.reaped"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// JobPayload is the data block for job lifecycle events.
type JobPayload struct {
	JobID       string `json:"job_id"`
	Type        string `json:"job_type"`
	Marketplace string `json:"marketplace,omitempty"`
	Status      string `json:"status"`
	Found       int    `json:"found"`
	New         int    `json:"new"`
	Updated     int    `json:"updated"`
	Message     string `json:"message,omitempty"`
}
