package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"lakerunner/internal/domain"
)

// Janitor deletes terminal jobs older than a retention TTL on a cron
// schedule. Queued and running jobs are never touched.
type Janitor struct {
	jobs     domain.JobStore
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewJanitor creates a retention janitor. schedule is a standard cron
// expression, e.g. "*/10 * * * *".
func NewJanitor(jobs domain.JobStore, ttl time.Duration, schedule string, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		jobs:     jobs,
		ttl:      ttl,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep and begins running it.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one retention pass immediately.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.ttl)
	return j.jobs.DeleteTerminalBefore(ctx, cutoff)
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("job retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("job retention sweep", "deleted", n)
	}
}
