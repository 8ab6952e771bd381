// Package service defines the backend-agnostic types and interface for sync backends.
package service

import "context"

// Backend is the transport capability for one remote system.
// The merge engine and orchestrator never import a backend's SDK directly.
//
// Implementations confine side effects to the remote system; they never
// touch the local store. Every method fails with *Error.
type Backend interface {
	// Service returns the service name used to key shadow rows.
	Service() string

	// Account returns the account name used to key shadow rows.
	Account() string

	// Configured verifies credentials, directories and permissions without
	// fetching data. A failure has Kind Configuration.
	Configured(ctx context.Context) error

	// ListAllLists enumerates every remote list.
	ListAllLists(ctx context.Context) ([]RemoteList, error)

	// ListChangedTasks returns the tasks of one remote list. Backends without
	// incremental fetch return all of them. Tasks the service reports as
	// deleted come back with RemotelyDeleted set.
	ListChangedTasks(ctx context.Context, list RemoteList) ([]RemoteTask, error)

	// CreateList creates a remote list from a local one and returns it with
	// the remote id and updated time assigned by the service.
	CreateList(ctx context.Context, local LocalList) (RemoteList, error)

	// UpdateList pushes the list's attributes and returns the fresh record.
	UpdateList(ctx context.Context, list RemoteList) (RemoteList, error)

	// DeleteList removes the remote list.
	DeleteList(ctx context.Context, list RemoteList) error

	// CreateTask creates a task in the given remote list.
	CreateTask(ctx context.Context, list RemoteList, local LocalTask) (RemoteTask, error)

	// UpdateTask pushes the task's attributes and returns the fresh record.
	UpdateTask(ctx context.Context, list RemoteList, task RemoteTask) (RemoteTask, error)

	// DeleteTask removes the remote task.
	DeleteTask(ctx context.Context, list RemoteList, task RemoteTask) error
}
