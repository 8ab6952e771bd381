// Package merge reconciles remote list/task state with the local store.
//
// A pass runs in two halves per entity kind. The local half
// (MergeListsWithLocalDB, SynchronizeListsLocally) folds the shadow rows into
// the freshly fetched remote records, applies remote changes to the local
// store and returns pairs. The remote half (SynchronizeListsRemotely) pushes
// whatever the pairs say the backend is missing. Tasks follow the same shape,
// scoped to one list pair.
//
// Every decision depends only on persisted updated timestamps and tombstones,
// so re-running an interrupted pass converges to the same result.
package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"tasksync/internal/service"
	"tasksync/internal/store"
)

// Store is the part of the local database the engine reads and writes.
// *store.Store satisfies it.
type Store interface {
	GetList(ctx context.Context, id int64) (service.LocalList, error)
	InsertList(ctx context.Context, l *service.LocalList) error
	UpdateListIf(ctx context.Context, l service.LocalList, expected int64) (bool, error)
	DeleteList(ctx context.Context, id int64) error
	ListsWithoutShadow(ctx context.Context, account, svc string) ([]service.LocalList, error)

	GetTask(ctx context.Context, id int64) (service.LocalTask, error)
	InsertTask(ctx context.Context, t *service.LocalTask) error
	UpdateTaskIf(ctx context.Context, t service.LocalTask, expected int64) (bool, error)
	DeleteTask(ctx context.Context, id int64) error
	TasksWithoutShadow(ctx context.Context, listID int64, account, svc string) ([]service.LocalTask, error)

	ListShadows(ctx context.Context, account, svc string) ([]service.RemoteList, error)
	SaveListShadow(ctx context.Context, r service.RemoteList) error
	PurgeListShadow(ctx context.Context, r service.RemoteList) error
	TaskShadows(ctx context.Context, listLocalID int64, account, svc string) ([]service.RemoteTask, error)
	SaveTaskShadow(ctx context.Context, r service.RemoteTask) error
	PurgeTaskShadow(ctx context.Context, r service.RemoteTask) error
}

// Stats counts the writes a pass performed.
type Stats struct {
	LocalInserts  int
	LocalUpdates  int
	LocalDeletes  int
	RemoteCreates int
	RemoteUpdates int
	RemoteDeletes int
	ShadowPurges  int

	// Conflicts counts conditional local updates that lost to a concurrent edit.
	Conflicts int
}

// Writes is the number of local and remote entity writes.
func (s Stats) Writes() int {
	return s.LocalInserts + s.LocalUpdates + s.LocalDeletes +
		s.RemoteCreates + s.RemoteUpdates + s.RemoteDeletes
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.LocalInserts += o.LocalInserts
	s.LocalUpdates += o.LocalUpdates
	s.LocalDeletes += o.LocalDeletes
	s.RemoteCreates += o.RemoteCreates
	s.RemoteUpdates += o.RemoteUpdates
	s.RemoteDeletes += o.RemoteDeletes
	s.ShadowPurges += o.ShadowPurges
	s.Conflicts += o.Conflicts
}

// ListPair links a local list with its remote shadow for one pass.
// Local is nil for a list the user deleted; Remote is nil for a list
// that has never been pushed.
type ListPair struct {
	Local  *service.LocalList
	Remote *service.RemoteList
}

// TaskPair links a local task with its remote shadow for one pass.
type TaskPair struct {
	Local  *service.LocalTask
	Remote *service.RemoteTask
}

// Engine reconciles one (account, service) pair.
type Engine struct {
	store   Store
	account string
	service string
	loc     *time.Location
	logger  *slog.Logger
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the time zone in which due dates are split into a
// calendar date and a time of day. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine for the given account and service.
func New(st Store, account, svc string, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		account: account,
		service: svc,
		loc:     time.Local,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("account", account, "service", svc)
	return e
}

// Stats returns the counters accumulated since the engine was created.
func (e *Engine) Stats() Stats {
	return e.stats
}

func (e *Engine) loadList(ctx context.Context, id int64) (*service.LocalList, error) {
	if id == 0 {
		return nil, nil
	}
	l, err := e.store.GetList(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (e *Engine) loadTask(ctx context.Context, id int64) (*service.LocalTask, error) {
	if id == 0 {
		return nil, nil
	}
	t, err := e.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ignoreNotFound treats a missing local row as already deleted.
func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
