package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"tasksync/internal/app"
	"tasksync/internal/backend/orgdir"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/syncer"
)

func init() {
	Register(&WatchCmd{})
}

// WatchCmd keeps syncing until interrupted: after every change in a
// watched org directory and at a fixed interval.
type WatchCmd struct {
	service  string
	interval time.Duration
}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return nil }
func (c *WatchCmd) Synopsis() string  { return "Sync on directory changes and periodically" }
func (c *WatchCmd) Usage() string {
	return "tasksync watch [--service <name>] [--interval <duration>]"
}
func (c *WatchCmd) NeedsEnv() bool { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.service, "service", "", "")
	fs.DurationVar(&c.interval, "interval", 0, "")
}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	backends, err := env.Select(c.service)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if len(backends) == 0 {
		fmt.Fprintf(errOut, "error: no backend enabled in %s\n", cfg.SettingsPath())
		return exitcode.UserError
	}
	interval := c.interval
	if interval == 0 {
		interval = cfg.Settings.Interval.Std()
	}
	if interval < 0 {
		fmt.Fprintf(errOut, "error: invalid interval: %s\n", interval)
		return exitcode.UserError
	}

	runner := env.Runner(backends)
	runner.OnResult = func(results []syncer.Result) {
		if !cfg.Quiet {
			for _, r := range results {
				output.FormatResult(out, r)
			}
		}
		reportSync(errOut, results)
	}

	// Initial pass, so the directories exist before they are watched.
	results := runner.RunAll(ctx)
	runner.OnResult(results)

	monitors := &monitorGroup{}
	for _, b := range backends {
		if d, ok := b.(*orgdir.Backend); ok {
			monitors.monitors = append(monitors.monitors, orgdir.NewMonitor(d.Dir(), env.Logger))
		}
	}
	defer monitors.Terminate()
	if err := monitors.Start(); err != nil {
		fmt.Fprintf(errOut, "error: watch directory: %v\n", err)
		return exitcode.UserError
	}

	opts := syncer.WatchOptions{
		Signals:  monitors.Signals(ctx),
		Interval: interval,
	}
	if len(monitors.monitors) > 0 {
		opts.Monitor = monitors
	}

	env.Logger.Info("watching", "backends", len(backends), "monitors", len(monitors.monitors), "interval", interval)
	err = runner.Watch(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	return exitcode.Success
}

// monitorGroup pauses and resumes several directory monitors together and
// merges their signals into one coalescing channel.
type monitorGroup struct {
	monitors []*orgdir.Monitor

	mu     sync.Mutex
	paused bool
	merged chan struct{}
}

// Start resumes forwarding, then starts every monitor.
func (g *monitorGroup) Start() error {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()

	for _, m := range g.monitors {
		if err := m.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Pause stops forwarding and drops a signal already merged, then pauses
// every monitor. No signal is delivered until the next Start.
func (g *monitorGroup) Pause() error {
	g.mu.Lock()
	g.paused = true
	if g.merged != nil {
		select {
		case <-g.merged:
		default:
		}
	}
	g.mu.Unlock()

	var errs []error
	for _, m := range g.monitors {
		errs = append(errs, m.Pause())
	}
	return errors.Join(errs...)
}

func (g *monitorGroup) Terminate() {
	for _, m := range g.monitors {
		_ = m.Terminate()
	}
}

// Signals merges the signals of every monitor. It returns nil for an
// empty group, which never fires.
func (g *monitorGroup) Signals(ctx context.Context) <-chan struct{} {
	if len(g.monitors) == 0 {
		return nil
	}
	g.mu.Lock()
	if g.merged == nil {
		g.merged = make(chan struct{}, 1)
	}
	merged := g.merged
	g.mu.Unlock()

	for _, m := range g.monitors {
		go func(signals <-chan struct{}) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-signals:
					if !ok {
						return
					}
					g.notify()
				}
			}
		}(m.Signals())
	}
	return merged
}

// notify forwards one signal unless the group is paused.
func (g *monitorGroup) notify() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.merged == nil {
		return
	}
	select {
	case g.merged <- struct{}{}:
	default:
	}
}
