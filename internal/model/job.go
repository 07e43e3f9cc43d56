package model

import "time"

// JobStatus is the state of an enrichment job in the in-memory job store.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether s is success or error.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// Job is one enrichment attempt, keyed by the correlation id shared with
// OnboardingRecord.JobID. Data is set iff Status is success, Error iff error.
type Job struct {
	ID        string             `json:"id"`
	Status    JobStatus          `json:"status"`
	Data      *EnrichmentPayload `json:"data,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// JobStatusReport is the answer to a status query.
type JobStatusReport struct {
	Status JobStatus          `json:"status"`
	Data   *EnrichmentPayload `json:"data,omitempty"`
	Error  string             `json:"error,omitempty"`
}
