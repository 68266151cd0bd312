// Package jobs is the orchestration core: it accepts query submissions,
// dispatches them to engine adapters under bounded per-engine concurrency,
// tracks job state through to a terminal outcome, and serves polling and
// cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lakerunner/internal/domain"
	"lakerunner/internal/engine"
)

const defaultCancelGrace = 5 * time.Second

// Options tunes the manager.
type Options struct {
	// CancelGrace bounds how long a RUNNING job may take to acknowledge a
	// cancellation signal before the manager marks it CANCELLED anyway.
	CancelGrace time.Duration
}

// Manager owns every Job record for its lifetime. Public operations are
// safe for concurrent use; none of them blocks on query execution.
type Manager struct {
	store   domain.JobStore
	engines *engine.Registry
	logger  *slog.Logger
	grace   time.Duration

	scheds map[string]*scheduler

	// cancels maps jobID → CancelFunc for every job that is queued or
	// running. Entries are removed when the worker finishes with the task.
	cancels sync.Map

	startOnce sync.Once
	started   bool
	mu        sync.Mutex
}

// NewManager creates a manager over the given store and engine registry.
func NewManager(store domain.JobStore, engines *engine.Registry, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	grace := opts.CancelGrace
	if grace <= 0 {
		grace = defaultCancelGrace
	}
	return &Manager{
		store:   store,
		engines: engines,
		logger:  logger,
		grace:   grace,
		scheds:  make(map[string]*scheduler),
	}
}

// Start reconciles jobs orphaned by a previous unclean stop, then launches
// one worker pool per engine sized by that engine's descriptor.
func (m *Manager) Start(ctx context.Context) error {
	var startErr error
	m.startOnce.Do(func() {
		n, err := m.store.ReconcileInterrupted(ctx, time.Now().UTC())
		if err != nil {
			startErr = fmt.Errorf("reconcile interrupted jobs: %w", err)
			return
		}
		if n > 0 {
			m.logger.Warn("reconciled interrupted jobs from previous run", "count", n)
		}

		for _, desc := range m.engines.Descriptors() {
			adapter, err := m.engines.Get(desc.ID)
			if err != nil {
				startErr = err
				return
			}
			s := newScheduler(desc.ID, desc.MaxConcurrency)
			s.start(func(t *task) { m.execute(adapter, t) })
			m.scheds[desc.ID] = s
			m.logger.Info("dispatch scheduler started",
				"engine", desc.ID, "max_concurrency", desc.MaxConcurrency)
		}

		m.mu.Lock()
		m.started = true
		m.mu.Unlock()
	})
	return startErr
}

// Shutdown stops all schedulers and waits for in-flight executions, up to
// ctx's deadline. After the deadline, in-flight job contexts are cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	g := new(errgroup.Group)
	for _, s := range m.scheds {
		s := s
		g.Go(func() error {
			s.stop()
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.cancels.Range(func(_, v interface{}) bool {
			v.(context.CancelFunc)()
			return true
		})
		<-done
		return ctx.Err()
	}
}

// Submit validates the engine, creates a QUEUED job durably visible to
// GetStatus before returning, and enqueues it. Non-blocking.
func (m *Manager) Submit(ctx context.Context, sqlText, engineID string) (*domain.Job, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}
	if _, err := m.engines.Get(engineID); err != nil {
		// No job record is created for an unknown engine.
		return nil, err
	}
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("job manager is not started")
	}

	job := &domain.Job{
		ID:          domain.NewID(),
		EngineID:    engineID,
		SQLText:     sqlText,
		State:       domain.JobStateQueued,
		SubmittedAt: time.Now().UTC(),
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	m.cancels.Store(job.ID, cancel)
	m.scheds[engineID].enqueue(&task{jobID: job.ID, sqlText: sqlText, ctx: jobCtx, cancel: cancel})

	m.logger.Info("job submitted", "job_id", job.ID, "engine", engineID)
	return job.Snapshot(), nil
}

// GetStatus returns a point-in-time snapshot of the job. Never blocks on
// execution.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// GetResult returns the stored result or failure record of a terminal job.
// Fails with NotReady while the job is QUEUED or RUNNING.
func (m *Manager) GetResult(ctx context.Context, jobID string) (*domain.QueryResult, *domain.JobError, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	switch job.State {
	case domain.JobStateSucceeded:
		return job.Result, nil, nil
	case domain.JobStateFailed:
		return nil, job.Error, nil
	case domain.JobStateCancelled:
		return nil, &domain.JobError{Kind: domain.ErrorKindCancelled, Message: "job was cancelled"}, nil
	default:
		return nil, nil, domain.ErrNotReady("job %q is %s", jobID, job.State)
	}
}

// Cancel requests cancellation. A no-op success on terminal jobs. A QUEUED
// job moves straight to CANCELLED and is skipped at dequeue. A RUNNING job
// has its token signalled and becomes CANCELLED when the adapter
// acknowledges, or after the grace timeout, whichever comes first.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}

	if raw, ok := m.cancels.Load(jobID); ok {
		raw.(context.CancelFunc)()
	}

	if job.State == domain.JobStateQueued {
		// The worker skips the task at dequeue once the state left QUEUED.
		applied, err := m.store.MarkCancelled(ctx, jobID, time.Now().UTC())
		if err != nil {
			return err
		}
		if applied {
			m.logger.Info("job cancelled while queued", "job_id", jobID)
			return nil
		}
		// Lost the race: a worker started it. Fall through to the grace path.
	}

	time.AfterFunc(m.grace, func() {
		forceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		applied, err := m.store.MarkCancelled(forceCtx, jobID, time.Now().UTC())
		if err != nil {
			m.logger.Error("force-cancel failed", "job_id", jobID, "error", err)
			return
		}
		if applied {
			// The adapter's connection may stay busy until the engine itself
			// abandons the query. That discrepancy must be visible, not hidden.
			m.logger.Warn("adapter did not acknowledge cancellation within grace period",
				"job_id", jobID, "grace", m.grace.String())
		}
	})
	return nil
}

// QueueDepth reports the number of jobs waiting (not yet started) for an
// engine. Zero for unknown engines and before Start.
func (m *Manager) QueueDepth(engineID string) int {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return 0
	}
	s, ok := m.scheds[engineID]
	if !ok {
		return 0
	}
	return s.depth()
}

// execute is the worker body: it owns the job exclusively from dequeue to
// terminal state. Adapter failures are classified and stored, never
// propagated — one bad query must not take down the pool.
func (m *Manager) execute(a engine.Adapter, t *task) {
	defer m.cancels.Delete(t.jobID)
	defer t.cancel()

	storeCtx := context.Background()

	// Cancelled while queued: Cancel already moved it to CANCELLED.
	if t.ctx.Err() != nil {
		return
	}

	applied, err := m.store.MarkRunning(storeCtx, t.jobID, time.Now().UTC())
	if err != nil {
		m.logger.Error("mark running failed", "job_id", t.jobID, "error", err)
		return
	}
	if !applied {
		return
	}

	raw, execErr := a.Execute(t.ctx, t.sqlText)
	if execErr != nil {
		m.finishWithError(t.jobID, execErr)
		return
	}

	result := engine.Normalize(raw)
	applied, err = m.store.MarkSucceeded(storeCtx, t.jobID, result, time.Now().UTC())
	if err != nil {
		m.logger.Error("mark succeeded failed", "job_id", t.jobID, "error", err)
		return
	}
	if !applied {
		// Force-cancelled during execution; the partial result is discarded.
		m.logger.Info("result discarded for cancelled job", "job_id", t.jobID)
		return
	}
	m.logger.Info("job succeeded", "job_id", t.jobID,
		"rows", result.Stats.RowsReturned, "wall_time_ms", result.Stats.WallTimeMs)
}

func (m *Manager) finishWithError(jobID string, execErr error) {
	storeCtx := context.Background()
	now := time.Now().UTC()

	var adapterErr *domain.AdapterError
	if errors.As(execErr, &adapterErr) && adapterErr.Kind == domain.ErrorKindCancelled {
		if _, err := m.store.MarkCancelled(storeCtx, jobID, now); err != nil {
			m.logger.Error("mark cancelled failed", "job_id", jobID, "error", err)
		}
		m.logger.Info("job cancelled", "job_id", jobID)
		return
	}

	jobErr := domain.JobError{Kind: domain.ErrorKindAdapterFailure, Message: execErr.Error()}
	if adapterErr != nil {
		jobErr = domain.JobError{Kind: adapterErr.Kind, Message: adapterErr.Message}
	}
	if _, err := m.store.MarkFailed(storeCtx, jobID, jobErr, now); err != nil {
		m.logger.Error("mark failed failed", "job_id", jobID, "error", err)
		return
	}
	m.logger.Info("job failed", "job_id", jobID, "kind", string(jobErr.Kind))
}
