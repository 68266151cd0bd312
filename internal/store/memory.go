// Package store provides the pluggable persistence implementations behind
// the domain's JobStore and SchemaStore ports: a mutex-guarded in-memory
// store and a SQLite store with embedded migrations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lakerunner/internal/domain"
)

var (
	_ domain.JobStore    = (*MemoryJobStore)(nil)
	_ domain.SchemaStore = (*MemorySchemaStore)(nil)
)

// MemoryJobStore keeps job records in process memory. State transitions are
// applied whole-record under one lock, so readers always observe a
// consistent (state, result, error) triple.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

// CreateJob stores a new job record.
func (s *MemoryJobStore) CreateJob(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrValidation("job with id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrConflict("job %q already exists", job.ID)
	}
	s.jobs[job.ID] = job.Snapshot()
	return nil
}

// GetJob returns a copy of the job record.
func (s *MemoryJobStore) GetJob(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound("job %q not found", id)
	}
	return job.Snapshot(), nil
}

// MarkRunning moves a QUEUED job to RUNNING.
func (s *MemoryJobStore) MarkRunning(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound("job %q not found", id)
	}
	if job.State != domain.JobStateQueued {
		return false, nil
	}
	job.State = domain.JobStateRunning
	job.StartedAt = &at
	return true, nil
}

// MarkSucceeded stores the result and moves a RUNNING job to SUCCEEDED.
func (s *MemoryJobStore) MarkSucceeded(_ context.Context, id string, result *domain.QueryResult, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound("job %q not found", id)
	}
	if job.State != domain.JobStateRunning {
		return false, nil
	}
	job.State = domain.JobStateSucceeded
	job.Result = result
	job.Error = nil
	job.FinishedAt = &at
	return true, nil
}

// MarkFailed stores the classified error and moves a non-terminal job to FAILED.
func (s *MemoryJobStore) MarkFailed(_ context.Context, id string, jobErr domain.JobError, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound("job %q not found", id)
	}
	if job.State.Terminal() {
		return false, nil
	}
	job.State = domain.JobStateFailed
	job.Error = &jobErr
	job.Result = nil
	job.FinishedAt = &at
	return true, nil
}

// MarkCancelled moves a non-terminal job to CANCELLED.
func (s *MemoryJobStore) MarkCancelled(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, domain.ErrNotFound("job %q not found", id)
	}
	if job.State.Terminal() {
		return false, nil
	}
	job.State = domain.JobStateCancelled
	job.Result = nil
	job.FinishedAt = &at
	return true, nil
}

// ReconcileInterrupted fails every non-terminal job with kind INTERRUPTED.
func (s *MemoryJobStore) ReconcileInterrupted(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.State.Terminal() {
			continue
		}
		job.State = domain.JobStateFailed
		job.Error = &domain.JobError{
			Kind:    domain.ErrorKindInterrupted,
			Message: "job was in flight during an unclean shutdown",
		}
		job.Result = nil
		job.FinishedAt = &at
		n++
	}
	return n, nil
}

// DeleteTerminalBefore removes terminal jobs that finished before cutoff.
func (s *MemoryJobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if job.State.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// MemorySchemaStore keeps the append-only schema version chain in memory.
type MemorySchemaStore struct {
	mu     sync.RWMutex
	tables map[string][]*domain.SchemaDefinition // oldest-first
}

// NewMemorySchemaStore creates an empty in-memory schema store.
func NewMemorySchemaStore() *MemorySchemaStore {
	return &MemorySchemaStore{tables: make(map[string][]*domain.SchemaDefinition)}
}

// AppendSchema stores a new immutable version.
func (s *MemorySchemaStore) AppendSchema(_ context.Context, def *domain.SchemaDefinition) error {
	if def == nil || def.TableName == "" {
		return domain.ErrValidation("schema definition with table name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.tables[def.TableName]
	for _, v := range versions {
		if v.Version == def.Version {
			return domain.ErrConflict("schema %q version %d already exists", def.TableName, def.Version)
		}
	}
	cp := *def
	s.tables[def.TableName] = append(versions, &cp)
	return nil
}

// CurrentVersion returns the highest stored version, or 0 for an unknown table.
func (s *MemorySchemaStore) CurrentVersion(_ context.Context, tableName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, v := range s.tables[tableName] {
		if v.Version > max {
			max = v.Version
		}
	}
	return max, nil
}

// GetSchema returns one exact version.
func (s *MemorySchemaStore) GetSchema(_ context.Context, tableName string, version int) (*domain.SchemaDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.tables[tableName] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound("schema %q version %d not found", tableName, version)
}

// GetCurrentSchema returns the newest version.
func (s *MemorySchemaStore) GetCurrentSchema(_ context.Context, tableName string) (*domain.SchemaDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *domain.SchemaDefinition
	for _, v := range s.tables[tableName] {
		if newest == nil || v.Version > newest.Version {
			newest = v
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound("schema %q not found", tableName)
	}
	cp := *newest
	return &cp, nil
}

// ListSchemaVersions returns version metadata oldest-first.
func (s *MemorySchemaStore) ListSchemaVersions(_ context.Context, tableName string) ([]domain.SchemaVersionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.tables[tableName]
	out := make([]domain.SchemaVersionInfo, 0, len(versions))
	for _, v := range versions {
		out = append(out, domain.SchemaVersionInfo{
			Version:    v.Version,
			FieldCount: len(v.Fields),
			CreatedAt:  v.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
