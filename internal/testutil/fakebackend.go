// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"tasksync/internal/service"
)

// FakeBackend is an in-memory implementation of service.Backend for testing.
// Every write stamps the record with the next value of a deterministic clock.
type FakeBackend struct {
	mu      sync.RWMutex
	svc     string
	account string
	clock   int64
	nextID  int
	lists   []service.RemoteList
	tasks   map[string][]service.RemoteTask // remote list id -> tasks
	calls   map[string]int

	// Error injection for testing
	ConfiguredErr   error
	ListAllListsErr error
	ListTasksErr    map[string]error // remote list id -> error
	CreateListErr   error
	UpdateListErr   error
	DeleteListErr   error
	CreateTaskErr   error
	UpdateTaskErr   error
	DeleteTaskErr   error
}

// NewFakeBackend creates an empty backend for the given service and account.
func NewFakeBackend(svc, account string) *FakeBackend {
	return &FakeBackend{
		svc:          svc,
		account:      account,
		clock:        1_000_000,
		tasks:        make(map[string][]service.RemoteTask),
		calls:        make(map[string]int),
		ListTasksErr: make(map[string]error),
	}
}

// SetClock sets the value the next write is stamped after.
func (f *FakeBackend) SetClock(millis int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = millis
}

// Now returns the current clock value.
func (f *FakeBackend) Now() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clock
}

func (f *FakeBackend) tick() int64 {
	f.clock += 1000
	return f.clock
}

func (f *FakeBackend) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// Calls returns how often op was invoked. An empty op returns the total.
func (f *FakeBackend) Calls(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if op != "" {
		return f.calls[op]
	}
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeBackend) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

// AddList seeds a remote list as if another client had created it.
func (f *FakeBackend) AddList(title string) service.RemoteList {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := service.RemoteList{
		RemoteID: f.newID("L"),
		Account:  f.account,
		Service:  f.svc,
		Title:    title,
		Updated:  f.tick(),
	}
	f.lists = append(f.lists, l)
	f.tasks[l.RemoteID] = nil
	return l
}

// AddTask seeds a remote task. RemoteID and Updated are assigned.
func (f *FakeBackend) AddTask(listID string, t service.RemoteTask) service.RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.RemoteID = f.newID("T")
	t.ListRemoteID = listID
	t.Account = f.account
	t.Service = f.svc
	t.Updated = f.tick()
	f.tasks[listID] = append(f.tasks[listID], t)
	return t
}

// RenameList changes a list title as if edited by another client.
func (f *FakeBackend) RenameList(id, title string) service.RemoteList {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.listIndex(id)
	f.lists[i].Title = title
	f.lists[i].Updated = f.tick()
	return f.lists[i]
}

// EditTask applies fn to a task as if edited by another client.
func (f *FakeBackend) EditTask(listID, id string, fn func(*service.RemoteTask)) service.RemoteTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(listID, id)
	t := &f.tasks[listID][i]
	fn(t)
	t.Updated = f.tick()
	return *t
}

// RemoveList deletes a list and its tasks as if removed by another client.
func (f *FakeBackend) RemoveList(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.listIndex(id); i >= 0 {
		f.lists = slices.Delete(f.lists, i, i+1)
		delete(f.tasks, id)
	}
}

// RemoveTask drops a task from the listing entirely.
func (f *FakeBackend) RemoveTask(listID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.taskIndex(listID, id); i >= 0 {
		f.tasks[listID] = slices.Delete(f.tasks[listID], i, i+1)
	}
}

// Lists returns a snapshot of the remote lists.
func (f *FakeBackend) Lists() []service.RemoteList {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.lists)
}

// Tasks returns a snapshot of the tasks in a remote list.
func (f *FakeBackend) Tasks(listID string) []service.RemoteTask {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.tasks[listID])
}

// FindList returns the first list with the given title.
func (f *FakeBackend) FindList(title string) (service.RemoteList, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range f.lists {
		if l.Title == title {
			return l, true
		}
	}
	return service.RemoteList{}, false
}

func (f *FakeBackend) listIndex(id string) int {
	return slices.IndexFunc(f.lists, func(l service.RemoteList) bool { return l.RemoteID == id })
}

func (f *FakeBackend) taskIndex(listID, id string) int {
	return slices.IndexFunc(f.tasks[listID], func(t service.RemoteTask) bool { return t.RemoteID == id })
}

func notFound(op, id string) error {
	return service.NewError(service.NotFound, op, fmt.Errorf("%s does not exist", id))
}

// Service implements service.Backend.
func (f *FakeBackend) Service() string { return f.svc }

// Account implements service.Backend.
func (f *FakeBackend) Account() string { return f.account }

// Configured implements service.Backend.
func (f *FakeBackend) Configured(ctx context.Context) error {
	f.record("Configured")
	return f.ConfiguredErr
}

// ListAllLists implements service.Backend.
func (f *FakeBackend) ListAllLists(ctx context.Context) ([]service.RemoteList, error) {
	f.record("ListAllLists")
	if f.ListAllListsErr != nil {
		return nil, f.ListAllListsErr
	}
	return f.Lists(), nil
}

// ListChangedTasks implements service.Backend.
func (f *FakeBackend) ListChangedTasks(ctx context.Context, list service.RemoteList) ([]service.RemoteTask, error) {
	f.record("ListChangedTasks")
	if err := f.ListTasksErr[list.RemoteID]; err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.listIndex(list.RemoteID) < 0 {
		return nil, notFound("list tasks", list.RemoteID)
	}
	return slices.Clone(f.tasks[list.RemoteID]), nil
}

// CreateList implements service.Backend.
func (f *FakeBackend) CreateList(ctx context.Context, local service.LocalList) (service.RemoteList, error) {
	f.record("CreateList")
	if f.CreateListErr != nil {
		return service.RemoteList{}, f.CreateListErr
	}
	return f.AddList(local.Title), nil
}

// UpdateList implements service.Backend.
func (f *FakeBackend) UpdateList(ctx context.Context, list service.RemoteList) (service.RemoteList, error) {
	f.record("UpdateList")
	if f.UpdateListErr != nil {
		return service.RemoteList{}, f.UpdateListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.listIndex(list.RemoteID)
	if i < 0 {
		return service.RemoteList{}, notFound("update list", list.RemoteID)
	}
	f.lists[i].Title = list.Title
	f.lists[i].Updated = f.tick()
	return f.lists[i], nil
}

// DeleteList implements service.Backend.
func (f *FakeBackend) DeleteList(ctx context.Context, list service.RemoteList) error {
	f.record("DeleteList")
	if f.DeleteListErr != nil {
		return f.DeleteListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.listIndex(list.RemoteID)
	if i < 0 {
		return notFound("delete list", list.RemoteID)
	}
	f.lists = slices.Delete(f.lists, i, i+1)
	delete(f.tasks, list.RemoteID)
	return nil
}

// CreateTask implements service.Backend.
func (f *FakeBackend) CreateTask(ctx context.Context, list service.RemoteList, local service.LocalTask) (service.RemoteTask, error) {
	f.record("CreateTask")
	if f.CreateTaskErr != nil {
		return service.RemoteTask{}, f.CreateTaskErr
	}
	f.mu.RLock()
	exists := f.listIndex(list.RemoteID) >= 0
	f.mu.RUnlock()
	if !exists {
		return service.RemoteTask{}, notFound("create task", list.RemoteID)
	}
	t := service.RemoteTask{
		Title:     local.Title,
		Notes:     local.Note,
		Completed: local.Completed != nil,
	}
	if local.Due != nil {
		t.Due = local.Due.Format(service.DateLayout)
	}
	return f.AddTask(list.RemoteID, t), nil
}

// UpdateTask implements service.Backend.
func (f *FakeBackend) UpdateTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) (service.RemoteTask, error) {
	f.record("UpdateTask")
	if f.UpdateTaskErr != nil {
		return service.RemoteTask{}, f.UpdateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(list.RemoteID, task.RemoteID)
	if i < 0 {
		return service.RemoteTask{}, notFound("update task", task.RemoteID)
	}
	t := &f.tasks[list.RemoteID][i]
	t.Title = task.Title
	t.Notes = task.Notes
	t.Due = task.Due
	t.Completed = task.Completed
	t.Updated = f.tick()
	return *t, nil
}

// DeleteTask implements service.Backend.
func (f *FakeBackend) DeleteTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) error {
	f.record("DeleteTask")
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(list.RemoteID, task.RemoteID)
	if i < 0 {
		return notFound("delete task", task.RemoteID)
	}
	f.tasks[list.RemoteID] = slices.Delete(f.tasks[list.RemoteID], i, i+1)
	return nil
}
