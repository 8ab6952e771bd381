// Package exitcode defines the process exit codes of tasksync.
package exitcode

const (
	Success = 0

	// UserError covers bad arguments and references to missing or
	// ambiguous lists and tasks.
	UserError = 1

	// AuthError means a backend is not configured or rejected the
	// credentials. Running login usually fixes it.
	AuthError = 2

	// BackendError means a sync pass failed on the network or on an
	// unexpected response. Retrying later may succeed.
	BackendError = 3

	// StoreError means the local database could not be read or written.
	StoreError = 4
)
