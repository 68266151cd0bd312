package domain

import "time"

// JobState represents the lifecycle state of an async query job.
type JobState string

// Job lifecycle states. Transitions are monotonic:
// QUEUED → RUNNING → {SUCCEEDED, FAILED, CANCELLED}, and QUEUED → CANCELLED
// when a job is cancelled before a worker picks it up. There is no
// transition out of a terminal state.
const (
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// Terminal reports whether s is a terminal state.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateCancelled
}

// JobError is the stored failure record of a FAILED job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is one tracked asynchronous execution of a query against one engine.
// The job manager owns the record for its lifetime; adapters only ever see
// the SQL text and a cancellation context.
type Job struct {
	ID          string
	EngineID    string
	SQLText     string
	State       JobState
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Result      *QueryResult // present only in SUCCEEDED
	Error       *JobError    // present only in FAILED
}

// Snapshot returns a copy of the job safe to hand to readers while a worker
// may still be writing the original.
func (j *Job) Snapshot() *Job {
	cp := *j
	return &cp
}
