package syncer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tasksync/internal/logging"
)

// Pausable is a change monitor the runner silences while a pass writes.
type Pausable interface {
	Pause() error
	Start() error
}

// Runner runs passes for a set of backends.
type Runner struct {
	orchestrators []*Orchestrator
	logger        *slog.Logger

	// OnResult, if set, is called with the results of every RunAll made by
	// Watch.
	OnResult func([]Result)
}

// NewRunner creates a runner over the given orchestrators.
func NewRunner(logger *slog.Logger, orchestrators ...*Orchestrator) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{orchestrators: orchestrators, logger: logger}
}

// Orchestrators returns the managed orchestrators.
func (r *Runner) Orchestrators() []*Orchestrator {
	return r.orchestrators
}

// RunAll runs one pass per backend, concurrently. Results are in the order
// the orchestrators were given. A failing backend does not stop the others.
func (r *Runner) RunAll(ctx context.Context) []Result {
	results := make([]Result, len(r.orchestrators))

	var g errgroup.Group
	for i, o := range r.orchestrators {
		g.Go(func() error {
			results[i] = o.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// WatchOptions configures Watch.
type WatchOptions struct {
	// Signals triggers a pass per receive. A closed channel ends Watch.
	Signals <-chan struct{}

	// Monitor, if set, is paused for the duration of each pass.
	Monitor Pausable

	// Interval triggers periodic passes when positive.
	Interval time.Duration
}

// Watch runs passes whenever a signal arrives or the interval elapses,
// until ctx is done or the signal channel is closed.
func (r *Runner) Watch(ctx context.Context, opts WatchOptions) error {
	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-opts.Signals:
			if !ok {
				return nil
			}
			r.logger.Debug("change signalled")
		case <-tick:
			r.logger.Debug("interval elapsed")
		}

		if err := r.runPaused(ctx, opts.Monitor); err != nil {
			return err
		}
	}
}

func (r *Runner) runPaused(ctx context.Context, monitor Pausable) error {
	if monitor != nil {
		if err := monitor.Pause(); err != nil {
			return err
		}
	}

	results := r.RunAll(ctx)
	if r.OnResult != nil {
		r.OnResult(results)
	}

	if monitor != nil {
		return monitor.Start()
	}
	return nil
}
