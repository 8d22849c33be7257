package models

import "time"

// JobPhase is the lifecycle state of one extraction job.
type JobPhase string

const (
	JobQueued     JobPhase = "queued"
	JobFetching   JobPhase = "fetching"
	JobExtracting JobPhase = "extracting"
	JobSucceeded  JobPhase = "succeeded"
	JobFailed     JobPhase = "failed"
)

// Terminal reports whether the phase ends the job.
func (p JobPhase) Terminal() bool {
	return p == JobSucceeded || p == JobFailed
}

// JobSnapshot is a point-in-time view of a job's state, safe to serialize.
type JobSnapshot struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Phase       JobPhase     `json:"phase"`
	Attempt     int          `json:"attempt"`
	MaxAttempts int          `json:"max_attempts"`
	Error       *ErrorDetail `json:"error,omitempty"`
	CacheStatus string       `json:"cache_status,omitempty"` // "hit", "stale", "miss"
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}
