package domain

import "time"

type JobStatus string

const (
	JobRunning   = JobStatus("running")
	JobCompleted = JobStatus("completed")
	JobFailed    = JobStatus("failed")
)

// Terminal reports whether a job in this status can never transition again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStats are the cumulative counters carried on a job row.
type JobStats struct {
	Found   int `json:"found"`
	New     int `json:"new"`
	Updated int `json:"updated"`
}

// StatsDelta is a partial counters patch; nil fields are left untouched.
type StatsDelta struct {
	Found   *int `json:"found,omitempty"`
	New     *int `json:"new,omitempty"`
	Updated *int `json:"updated,omitempty"`
}

func (d StatsDelta) ApplyTo(s *JobStats) {
	if d.Found != nil {
		s.Found += *d.Found
	}
	if d.New != nil {
		s.New += *d.New
	}
	if d.Updated != nil {
		s.Updated += *d.Updated
	}
}

// Job is one pipeline-stage run. Rows become immutable once Status is
// terminal; only the ledger, the progress tracker and the reaper write them.
type Job struct {
	ID           string
	Type         string
	Marketplace  string
	Status       JobStatus
	Stats        JobStats
	StartedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	TimeoutAt    time.Time
	LastUpdate   string
	ErrorMessage string
	Metadata     map[string]any
	DatasetID    string
}
