// Package syncer drives sync passes: one Orchestrator per backend runs the
// state machine of a pass, and a Runner schedules passes across backends.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tasksync/internal/logging"
	"tasksync/internal/merge"
	"tasksync/internal/service"
)

// ErrPassInFlight is returned when a pass is requested for a backend that
// is already syncing.
var ErrPassInFlight = errors.New("sync pass already in progress")

// State is a step of a pass.
type State int

const (
	Idle State = iota
	FetchingLists
	MergingLists
	PushingLists
	FetchingTasks
	MergingTasks
	PushingTasks
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FetchingLists:
		return "fetching lists"
	case MergingLists:
		return "merging lists"
	case PushingLists:
		return "pushing lists"
	case FetchingTasks:
		return "fetching tasks"
	case MergingTasks:
		return "merging tasks"
	case PushingTasks:
		return "pushing tasks"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store is the local database as seen by a pass.
type Store interface {
	merge.Store
	LastSync(ctx context.Context, account, svc string) (time.Time, error)
	SetLastSync(ctx context.Context, account, svc string, t time.Time) error
}

// Result describes one finished pass.
type Result struct {
	Account string
	Service string
	State   State
	Trace   []State
	Err     error
	Stats   merge.Stats

	AuthErrors     int
	IOErrors       int
	ProtocolErrors int
	ConfigErrors   int

	Started  time.Time
	Finished time.Time
}

// Success reports whether the pass reached Done.
func (r Result) Success() bool {
	return r.State == Done
}

// Reason is a short description of why the pass failed, or "" on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	if errors.Is(r.Err, ErrPassInFlight) {
		return "busy"
	}
	if kind, ok := service.KindOf(r.Err); ok {
		return kind.String()
	}
	return "local error"
}

// Duration is the wall time the pass took.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Orchestrator runs passes for one backend. Passes never overlap.
type Orchestrator struct {
	store   Store
	backend service.Backend
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocation sets the zone due dates are merged in.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock sets the clock used for pass start and finish times.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator for backend b.
func NewOrchestrator(st Store, b service.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		backend: b,
		logger:  logging.Discard(),
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("service", b.Service(), "account", b.Account())
	return o
}

// Backend returns the backend this orchestrator syncs.
func (o *Orchestrator) Backend() service.Backend {
	return o.backend
}

// LastSync returns the start time of the last successful pass.
func (o *Orchestrator) LastSync(ctx context.Context) (time.Time, error) {
	return o.store.LastSync(ctx, o.backend.Account(), o.backend.Service())
}

// Run executes one pass. It returns immediately with ErrPassInFlight when a
// pass for this backend is already running.
func (o *Orchestrator) Run(ctx context.Context) Result {
	b := o.backend
	res := Result{
		Account: b.Account(),
		Service: b.Service(),
		Started: o.now(),
		Trace:   []State{Idle},
	}

	if !o.mu.TryLock() {
		res.Err = ErrPassInFlight
		res.enter(Failed)
		res.Finished = res.Started
		return res
	}
	defer o.mu.Unlock()

	engine := merge.New(o.store, b.Account(), b.Service(),
		merge.WithLocation(o.loc), merge.WithLogger(o.logger))

	err := o.pass(ctx, engine, &res)
	res.Stats = engine.Stats()
	if err == nil {
		err = o.store.SetLastSync(ctx, b.Account(), b.Service(), res.Started)
	}
	res.Finished = o.now()

	if err != nil {
		o.fail(&res, err)
		return res
	}

	res.enter(Done)
	o.logger.Info("pass finished",
		"duration", res.Duration(),
		"writes", res.Stats.Writes(),
		"conflicts", res.Stats.Conflicts)
	return res
}

func (o *Orchestrator) pass(ctx context.Context, engine *merge.Engine, res *Result) error {
	b := o.backend

	res.enter(FetchingLists)
	if err := b.Configured(ctx); err != nil {
		if _, ok := service.KindOf(err); !ok {
			err = service.NewError(service.Configuration, "check configuration", err)
		}
		return err
	}
	remote, err := b.ListAllLists(ctx)
	if err != nil {
		return err
	}

	res.enter(MergingLists)
	merged, err := engine.MergeListsWithLocalDB(ctx, remote)
	if err != nil {
		return err
	}
	pairs, err := engine.SynchronizeListsLocally(ctx, merged)
	if err != nil {
		return err
	}

	res.enter(PushingLists)
	synced, err := engine.SynchronizeListsRemotely(ctx, pairs, b)
	if err != nil {
		return err
	}

	for _, list := range synced {
		if err := ctx.Err(); err != nil {
			return err
		}

		res.enter(FetchingTasks)
		tasks, err := b.ListChangedTasks(ctx, *list.Remote)
		if service.IsNotFound(err) {
			// Deleted since the list fetch; the next pass reconciles it.
			o.logger.Debug("list vanished during pass", "remote_id", list.Remote.RemoteID)
			continue
		}
		if err != nil {
			return err
		}

		res.enter(MergingTasks)
		mergedTasks, err := engine.MergeTasksWithLocalDB(ctx, tasks, list)
		if err != nil {
			return err
		}
		taskPairs, err := engine.SynchronizeTasksLocally(ctx, mergedTasks, list)
		if err != nil {
			return err
		}

		res.enter(PushingTasks)
		if err := engine.SynchronizeTasksRemotely(ctx, taskPairs, list, b); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) fail(res *Result, err error) {
	res.Err = err
	kind, ok := service.KindOf(err)
	switch {
	case !ok:
		res.IOErrors++
	case kind == service.Unauthorized:
		res.AuthErrors++
	case kind == service.Configuration:
		res.ConfigErrors++
	case kind == service.Protocol:
		res.ProtocolErrors++
	default:
		res.IOErrors++
	}
	res.enter(Failed)
	o.logger.Warn("pass failed",
		"state", res.Trace[len(res.Trace)-2].String(),
		"reason", res.Reason(),
		"error", err)
}
