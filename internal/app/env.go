// Package app assembles the local store, the logger and the configured
// backends into the environment commands run against.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tasksync/internal/backend/googletasks"
	"tasksync/internal/backend/orgdir"
	"tasksync/internal/config"
	"tasksync/internal/logging"
	"tasksync/internal/service"
	"tasksync/internal/store"
	"tasksync/internal/syncer"
)

// Env is what a command needs to read and edit tasks and to sync them.
type Env struct {
	Config   *config.Config
	Store    *store.Store
	Logger   *slog.Logger
	Location *time.Location
	Backends []service.Backend
}

// Open opens the database named by cfg and builds every enabled backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	loc, err := cfg.Settings.TimeLocation()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath(), logger.With("component", "store"))
	if err != nil {
		return nil, err
	}

	env := NewEnv(cfg, st, logger, Backends(ctx, cfg, logger)...)
	env.Location = loc
	return env, nil
}

// NewEnv wraps an open store and a fixed set of backends.
func NewEnv(cfg *config.Config, st *store.Store, logger *slog.Logger, backends ...service.Backend) *Env {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Env{
		Config:   cfg,
		Store:    st,
		Logger:   logger,
		Location: time.Local,
		Backends: backends,
	}
}

// Backends builds the backends enabled in the settings, in a fixed order.
func Backends(ctx context.Context, cfg *config.Config, logger *slog.Logger) []service.Backend {
	var backends []service.Backend
	s := cfg.Settings

	if s.Google.Enabled {
		backends = append(backends, googletasks.New(ctx, cfg,
			googletasks.WithAccount(s.Google.Account),
			googletasks.WithTimeout(s.Google.Timeout.Std()),
			googletasks.WithLogger(logger.With("backend", googletasks.ServiceName)),
		))
	}
	if s.OrgDir.Enabled {
		backends = append(backends, orgdir.New(s.OrgDir.Dir,
			orgdir.WithAccount(s.OrgDir.Account),
			orgdir.WithLogger(logger.With("backend", orgdir.ServiceName)),
		))
	}
	return backends
}

// Select returns the backends whose service name is svc, or all of them
// when svc is empty.
func (e *Env) Select(svc string) ([]service.Backend, error) {
	if svc == "" {
		return e.Backends, nil
	}
	var out []service.Backend
	for _, b := range e.Backends {
		if b.Service() == svc {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("backend not enabled: %s", svc)
	}
	return out, nil
}

// Runner returns a runner with one orchestrator per backend.
func (e *Env) Runner(backends []service.Backend) *syncer.Runner {
	orchs := make([]*syncer.Orchestrator, len(backends))
	for i, b := range backends {
		orchs[i] = syncer.NewOrchestrator(e.Store, b,
			syncer.WithLogger(e.Logger),
			syncer.WithLocation(e.Location))
	}
	return syncer.NewRunner(e.Logger, orchs...)
}

// Close releases the store.
func (e *Env) Close() error {
	if e.Store == nil {
		return nil
	}
	return e.Store.Close()
}
