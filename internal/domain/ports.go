package domain

import (
	"context"
	"time"
)

// EngineDescriptor is the static, process-wide description of a registered
// engine adapter. Read-only after startup; the dispatch scheduler reads
// MaxConcurrency from here rather than hardcoding per-engine knowledge.
type EngineDescriptor struct {
	ID             string `json:"id"`
	MaxConcurrency int    `json:"max_concurrency"`
	SupportsPlan   bool   `json:"supports_plan"`
}

// JobStore persists job lifecycle state. Implementations must apply each
// state transition atomically with its payload, so a reader never observes
// RUNNING with a populated result or SUCCEEDED without one, and must refuse
// transitions out of a terminal state.
//
// The Mark* methods return false (with a nil error) when the transition
// guard rejected the write: the job had already left the expected state,
// typically because a concurrent Cancel won the race.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)

	// MarkRunning moves a QUEUED job to RUNNING and sets StartedAt.
	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkSucceeded stores the result and moves a RUNNING job to SUCCEEDED.
	MarkSucceeded(ctx context.Context, id string, result *QueryResult, at time.Time) (bool, error)
	// MarkFailed stores the classified error and moves a non-terminal job to FAILED.
	MarkFailed(ctx context.Context, id string, jobErr JobError, at time.Time) (bool, error)
	// MarkCancelled moves a non-terminal job to CANCELLED.
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)

	// ReconcileInterrupted marks every non-terminal job FAILED with kind
	// INTERRUPTED. Called once at startup before any worker runs, so jobs
	// orphaned by an unclean stop are never left RUNNING forever.
	ReconcileInterrupted(ctx context.Context, at time.Time) (int, error)
	// DeleteTerminalBefore removes terminal jobs that finished before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SchemaStore persists the append-only schema version chain per table.
type SchemaStore interface {
	// AppendSchema stores a new immutable version. Fails with a ConflictError
	// if that (table, version) pair already exists.
	AppendSchema(ctx context.Context, def *SchemaDefinition) error
	// CurrentVersion returns the highest stored version for a table, or 0
	// when the table has no versions.
	CurrentVersion(ctx context.Context, tableName string) (int, error)
	GetSchema(ctx context.Context, tableName string, version int) (*SchemaDefinition, error)
	GetCurrentSchema(ctx context.Context, tableName string) (*SchemaDefinition, error)
	// ListSchemaVersions returns version metadata oldest-first.
	ListSchemaVersions(ctx context.Context, tableName string) ([]SchemaVersionInfo, error)
}
