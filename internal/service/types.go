// Package service defines the backend-agnostic types and interface for sync backends.
package service

import "time"

// LocalList is a task list as stored in the local database.
type LocalList struct {
	ID      int64
	Title   string
	Updated int64 // epoch millis, bumped on every persisted change
	Sorting string
}

// LocalTask is a task as stored in the local database.
type LocalTask struct {
	ID        int64
	ListID    int64
	Title     string
	Note      string
	Due       *time.Time
	Completed *int64 // epoch millis, nil = not completed
	Updated   int64
}

// IsCompleted reports whether the task carries a completion timestamp.
func (t LocalTask) IsCompleted() bool {
	return t.Completed != nil
}

// RemoteList is the shadow of a remote list: the mapping row kept locally
// plus the attributes most recently reported by the backend.
type RemoteList struct {
	LocalID  int64 // 0 until the list has a local counterpart
	RemoteID string
	Account  string
	Service  string
	Title    string
	Updated  int64

	// Deleted is the local tombstone: the user removed the local list and
	// the deletion has not reached the backend yet.
	Deleted bool

	// RemotelyDeleted is set during a pass when the backend no longer
	// reports the list. Never persisted.
	RemotelyDeleted bool
}

// RemoteTask is the shadow of a remote task.
type RemoteTask struct {
	LocalID      int64
	RemoteID     string
	ListLocalID  int64
	ListRemoteID string
	Account      string
	Service      string
	Title        string
	Notes        string
	Due          string // calendar date, "2006-01-02"; empty when unset
	Completed    bool
	Updated      int64

	Deleted         bool
	RemotelyDeleted bool
}

// DateLayout is the calendar-date format used for RemoteTask.Due.
const DateLayout = "2006-01-02"
