// Package orgdir implements service.Backend on a directory of outline files.
// Each list is one *.org file, each task a top-level headline in it.
package orgdir

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasksync/internal/orgcodec"
	"tasksync/internal/service"
)

const (
	// ServiceName keys the shadow rows of this backend.
	ServiceName = "orgdir"

	// Ext is the extension of list files.
	Ext = ".org"

	// maxNameAttempts bounds the search for a free file name: name.org,
	// name1.org ... name99.org.
	maxNameAttempts = 100
)

// Backend stores lists as files in a directory.
type Backend struct {
	dir     string
	account string
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes read-modify-write cycles on files.
	mu sync.Mutex

	// claims maps each task id to the file that owns it, as of the last
	// read. A task id is unique across the directory.
	claims map[string]string
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock sets the clock used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithAccount overrides the account name, which defaults to the directory.
func WithAccount(account string) Option {
	return func(b *Backend) {
		if account != "" {
			b.account = account
		}
	}
}

// New creates a backend rooted at dir. The directory is not touched until
// Configured is called.
func New(dir string, opts ...Option) *Backend {
	b := &Backend{
		dir:     dir,
		account: dir,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir returns the watched directory.
func (b *Backend) Dir() string { return b.dir }

// Service implements service.Backend.
func (b *Backend) Service() string { return ServiceName }

// Account implements service.Backend.
func (b *Backend) Account() string { return b.account }

// Configured checks that the directory exists (creating it if needed) and
// is writable.
func (b *Backend) Configured(ctx context.Context) error {
	const op = "check directory"
	if strings.TrimSpace(b.dir) == "" {
		return service.NewError(service.Configuration, op, errors.New("no directory configured"))
	}
	if err := os.MkdirAll(b.dir, 0700); err != nil {
		return service.NewError(service.Configuration, op, err)
	}
	tmp, err := os.CreateTemp(b.dir, ".tasksync-check-*")
	if err != nil {
		return service.NewError(service.Configuration, op, fmt.Errorf("directory not writable: %w", err))
	}
	tmp.Close()
	_ = os.Remove(tmp.Name())
	return nil
}

// ListAllLists implements service.Backend. Files written or edited by hand
// are normalized on the way: see normalize.
func (b *Backend) ListAllLists(ctx context.Context) ([]service.RemoteList, error) {
	const op = "list lists"
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fsError(op, err)
	}

	var files []*file
	for _, de := range entries {
		if de.IsDir() || !isListFile(de.Name()) {
			continue
		}
		f, err := b.load(op, de.Name())
		if errors.Is(err, fs.ErrNotExist) || service.IsNotFound(err) {
			// Removed between ReadDir and open.
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	// The older of two files sharing an id keeps it, so a copied file
	// does not take over the tasks of its original.
	byAge := slices.Clone(files)
	slices.SortStableFunc(byAge, func(x, y *file) int { return cmp.Compare(x.mtime, y.mtime) })
	claims := make(map[string]string)
	for _, f := range byAge {
		if err := b.normalize(op, f, claims); err != nil {
			return nil, err
		}
	}
	b.claims = claims

	lists := make([]service.RemoteList, 0, len(files))
	for _, f := range files {
		lists = append(lists, f.remoteList())
	}

	b.logger.Debug("read lists", "dir", b.dir, "count", len(lists))
	return lists, nil
}

// ListChangedTasks implements service.Backend. The whole file is read on
// every call.
func (b *Backend) ListChangedTasks(ctx context.Context, list service.RemoteList) ([]service.RemoteTask, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.open("list tasks", list.RemoteID)
	if err != nil {
		return nil, err
	}
	tasks := make([]service.RemoteTask, 0, len(f.doc.Entries))
	for i := range f.doc.Entries {
		tasks = append(tasks, f.remoteTask(i))
	}
	return tasks, nil
}

// CreateList implements service.Backend.
func (b *Backend) CreateList(ctx context.Context, local service.LocalList) (service.RemoteList, error) {
	const op = "create list"
	b.mu.Lock()
	defer b.mu.Unlock()

	name, err := b.reserveName(op, local.Title)
	if err != nil {
		return service.RemoteList{}, err
	}

	f := &file{name: name, doc: &orgcodec.Document{Title: local.Title}}
	f.doc.Seal(b.stamp(0))
	if err := b.save(op, f); err != nil {
		_ = os.Remove(filepath.Join(b.dir, name))
		return service.RemoteList{}, err
	}

	b.logger.Debug("created list file", "file", name)
	return f.remoteList(), nil
}

// UpdateList implements service.Backend.
func (b *Backend) UpdateList(ctx context.Context, list service.RemoteList) (service.RemoteList, error) {
	const op = "update list"
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.open(op, list.RemoteID)
	if err != nil {
		return service.RemoteList{}, err
	}
	f.doc.Title = list.Title
	f.doc.Seal(b.stamp(f.doc.Updated))
	if err := b.save(op, f); err != nil {
		return service.RemoteList{}, err
	}
	return f.remoteList(), nil
}

// DeleteList implements service.Backend.
func (b *Backend) DeleteList(ctx context.Context, list service.RemoteList) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path(list.RemoteID)); err != nil {
		return fsError("delete list", err)
	}
	return nil
}

// CreateTask implements service.Backend.
func (b *Backend) CreateTask(ctx context.Context, list service.RemoteList, local service.LocalTask) (service.RemoteTask, error) {
	const op = "create task"
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.open(op, list.RemoteID)
	if err != nil {
		return service.RemoteTask{}, err
	}

	e := orgcodec.Entry{
		ID:    uuid.NewString(),
		Title: local.Title,
		Body:  local.Note,
		Done:  local.Completed != nil,
	}
	if local.Due != nil {
		e.Deadline = local.Due.Format(service.DateLayout)
	}
	e.Seal(b.stamp(0))
	f.doc.Entries = append(f.doc.Entries, e)
	b.claim(e.ID, f.name)

	if err := b.save(op, f); err != nil {
		return service.RemoteTask{}, err
	}
	return f.remoteTask(len(f.doc.Entries) - 1), nil
}

// UpdateTask implements service.Backend.
func (b *Backend) UpdateTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) (service.RemoteTask, error) {
	const op = "update task"
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.open(op, list.RemoteID)
	if err != nil {
		return service.RemoteTask{}, err
	}
	i := f.index(task.RemoteID)
	if i < 0 {
		return service.RemoteTask{}, service.NewError(service.NotFound, op, fmt.Errorf("no task %s in %s", task.RemoteID, list.RemoteID))
	}

	e := &f.doc.Entries[i]
	e.Title = task.Title
	e.Body = task.Notes
	e.Deadline = task.Due
	e.Done = task.Completed
	e.Seal(b.stamp(e.Updated))

	if err := b.save(op, f); err != nil {
		return service.RemoteTask{}, err
	}
	return f.remoteTask(i), nil
}

// DeleteTask implements service.Backend.
func (b *Backend) DeleteTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) error {
	const op = "delete task"
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.open(op, list.RemoteID)
	if err != nil {
		return err
	}
	i := f.index(task.RemoteID)
	if i < 0 {
		return service.NewError(service.NotFound, op, fmt.Errorf("no task %s in %s", task.RemoteID, list.RemoteID))
	}
	f.doc.Entries = append(f.doc.Entries[:i], f.doc.Entries[i+1:]...)
	return b.save(op, f)
}

// stamp returns an update time strictly after prev.
func (b *Backend) stamp(prev int64) int64 {
	n := b.now().UnixMilli()
	if n <= prev {
		n = prev + 1
	}
	return n
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.dir, filepath.Base(name))
}

// reserveName claims a free file name for title by creating it exclusively.
func (b *Backend) reserveName(op, title string) (string, error) {
	base := SanitizeName(title)
	for i := 0; i < maxNameAttempts; i++ {
		name := base + Ext
		if i > 0 {
			name = base + strconv.Itoa(i) + Ext
		}
		fh, err := os.OpenFile(filepath.Join(b.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fsError(op, err)
		}
		fh.Close()
		return name, nil
	}
	return "", service.NewError(service.Configuration, op,
		fmt.Errorf("no free file name for %q after %d attempts", title, maxNameAttempts))
}

// SanitizeName turns a list title into a file base name.
func SanitizeName(title string) string {
	name := strings.TrimSpace(title)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "untitled"
	}
	return name
}

func isListFile(name string) bool {
	return strings.HasSuffix(name, Ext) && !strings.HasPrefix(name, ".")
}

// file is one loaded list file.
type file struct {
	name  string
	doc   *orgcodec.Document
	mtime int64
}

func (b *Backend) load(op, name string) (*file, error) {
	p := b.path(name)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fsError(op, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fsError(op, err)
	}
	doc, err := orgcodec.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, service.NewError(service.Protocol, op, fmt.Errorf("%s: %w", name, err))
	}
	return &file{
		name:  filepath.Base(name),
		doc:   doc,
		mtime: info.ModTime().UnixMilli(),
	}, nil
}

// open loads one file and normalizes it against the ids claimed so far.
func (b *Backend) open(op, name string) (*file, error) {
	f, err := b.load(op, name)
	if err != nil {
		return nil, err
	}
	if b.claims == nil {
		b.claims = make(map[string]string)
	}
	if err := b.normalize(op, f, b.claims); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *Backend) claim(id, name string) {
	if b.claims == nil {
		b.claims = make(map[string]string)
	}
	b.claims[id] = name
}

// normalize gives every entry an id that no other file (and no earlier
// entry) holds, and seals the header and every entry whose content no
// longer matches its checksum with the file mtime. A changed file is
// written back at once: later hand edits then stand out against stamps
// that are already stored, and ids stay stable across reads.
func (b *Backend) normalize(op string, f *file, claims map[string]string) error {
	dirty := false
	if !f.doc.Verified() {
		f.doc.Seal(max(f.mtime, f.doc.Updated+1))
		dirty = true
	}

	seen := make(map[string]bool, len(f.doc.Entries))
	for i := range f.doc.Entries {
		e := &f.doc.Entries[i]
		owner, claimed := claims[e.ID]
		if e.ID == "" || seen[e.ID] || (claimed && owner != f.name) {
			if e.ID != "" {
				b.logger.Info("re-keyed duplicate task id", "file", f.name, "id", e.ID)
			}
			e.ID = uuid.NewString()
			dirty = true
		}
		seen[e.ID] = true
		claims[e.ID] = f.name

		if !e.Verified() {
			e.Seal(max(f.mtime, e.Updated+1))
			dirty = true
		}
	}

	if !dirty {
		return nil
	}
	b.logger.Debug("normalized list file", "file", f.name)
	return b.save(op, f)
}

// save writes the file atomically.
func (b *Backend) save(op string, f *file) error {
	if err := writeAtomic(b.path(f.name), f.doc.Marshal()); err != nil {
		return fsError(op, err)
	}
	return nil
}

func (f *file) remoteList() service.RemoteList {
	title := f.doc.Title
	if title == "" {
		title = strings.TrimSuffix(f.name, Ext)
	}
	return service.RemoteList{
		RemoteID: f.name,
		Service:  ServiceName,
		Title:    title,
		Updated:  f.doc.Updated,
	}
}

func (f *file) remoteTask(i int) service.RemoteTask {
	e := f.doc.Entries[i]
	return service.RemoteTask{
		RemoteID:     e.ID,
		ListRemoteID: f.name,
		Service:      ServiceName,
		Title:        e.Title,
		Notes:        e.Body,
		Due:          e.Deadline,
		Completed:    e.Done,
		Updated:      e.Updated,
	}
}

func (f *file) index(id string) int {
	for i, e := range f.doc.Entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// writeAtomic replaces path with data via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fsError maps a filesystem failure onto the transport taxonomy.
func fsError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return service.NewError(service.NotFound, op, err)
	case errors.Is(err, fs.ErrPermission):
		return service.NewError(service.Configuration, op, err)
	default:
		return service.NewError(service.Network, op, err)
	}
}
