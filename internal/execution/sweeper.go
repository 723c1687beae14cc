// Package execution runs background maintenance via River. The pipeline
// itself is synchronous; the only queued work is the stuck-job sweep.
package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// SweepStuckJobsArgs is the periodic sweep job. A processing job left in
// running past the provider timeout will never finish (no retry semantics
// exist); the sweep fails it so the key stops looking in-flight.
type SweepStuckJobsArgs struct{}

func (SweepStuckJobsArgs) Kind() string { return "sweep_stuck_jobs" }

// JobFailer is the contract the sweeper needs from the job repository.
type JobFailer interface {
	FailStuck(ctx context.Context, maxAge time.Duration, message string) (int64, error)
}

type StuckJobSweeper struct {
	river.WorkerDefaults[SweepStuckJobsArgs]
	jobs   JobFailer
	maxAge time.Duration
	logger *slog.Logger
}

func NewStuckJobSweeper(jobs JobFailer, maxAge time.Duration, logger *slog.Logger) *StuckJobSweeper {
	return &StuckJobSweeper{jobs: jobs, maxAge: maxAge, logger: logger}
}

func (w *StuckJobSweeper) Work(ctx context.Context, _ *river.Job[SweepStuckJobsArgs]) error {
	n, err := w.jobs.FailStuck(ctx, w.maxAge, "provider call timed out")
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Warn("failed stuck processing jobs", "count", n, "max_age", w.maxAge.String())
	}
	return nil
}
