package domain

import "time"

// Payload kinds.
const (
	PayloadSearch = "search"
	PayloadDetail = "detail"
)

// RawPayload is an immutable capture of one upstream response, owned by the
// job that created it. Never mutated after insert.
type RawPayload struct {
	ID          int64
	JobID       string
	Marketplace string
	Kind        string // search or detail
	Page        int
	Body        []byte
	FetchedAt   time.Time
}
