package orgdir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksync/internal/service"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	var clock int64 = 1_000
	b := New(dir, WithClock(func() time.Time {
		clock += 10
		return time.UnixMilli(clock)
	}))
	require.NoError(t, b.Configured(context.Background()))
	return b, dir
}

func TestConfigured(t *testing.T) {
	ctx := context.Background()

	err := New("").Configured(ctx)
	assert.True(t, service.IsKind(err, service.Configuration))

	nested := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, New(nested).Configured(ctx))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(nested)
	require.NoError(t, err)
	assert.Empty(t, entries, "writability check must clean up its temp file")
}

func TestConfigured_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	err := New(path).Configured(context.Background())
	assert.True(t, service.IsKind(err, service.Configuration))
}

func TestCreateList_ListAllLists(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	created, err := b.CreateList(ctx, service.LocalList{Title: "Home/Work"})
	require.NoError(t, err)
	assert.Equal(t, "Home_Work.org", created.RemoteID)
	assert.Equal(t, "Home/Work", created.Title)
	assert.Equal(t, int64(1010), created.Updated)
	assert.FileExists(t, filepath.Join(dir, "Home_Work.org"))

	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.org"), []byte("x"), 0644))

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, created.RemoteID, lists[0].RemoteID)
	assert.Equal(t, "Home/Work", lists[0].Title)
	assert.Equal(t, created.Updated, lists[0].Updated)
}

func TestCreateList_NameCollisions(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := b.CreateList(ctx, service.LocalList{Title: "Notes"})
		require.NoError(t, err, "attempt %d", i+1)
	}
	assert.FileExists(t, filepath.Join(dir, "Notes.org"))
	assert.FileExists(t, filepath.Join(dir, "Notes1.org"))
	assert.FileExists(t, filepath.Join(dir, "Notes99.org"))

	before, err := os.ReadFile(filepath.Join(dir, "Notes99.org"))
	require.NoError(t, err)

	_, err = b.CreateList(ctx, service.LocalList{Title: "Notes"})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.Configuration))

	after, err := os.ReadFile(filepath.Join(dir, "Notes99.org"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, filepath.Join(dir, "Notes100.org"))
}

func TestUpdateList_DeleteList(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	created, err := b.CreateList(ctx, service.LocalList{Title: "Groceries"})
	require.NoError(t, err)

	created.Title = "Food"
	updated, err := b.UpdateList(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "Food", updated.Title)
	assert.Equal(t, created.RemoteID, updated.RemoteID, "renaming keeps the file")
	assert.Greater(t, updated.Updated, created.Updated)

	require.NoError(t, b.DeleteList(ctx, created))
	err = b.DeleteList(ctx, created)
	assert.True(t, service.IsNotFound(err))

	_, err = b.UpdateList(ctx, created)
	assert.True(t, service.IsNotFound(err))
	_, err = b.ListChangedTasks(ctx, created)
	assert.True(t, service.IsNotFound(err))
}

func TestTaskLifecycle(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	list, err := b.CreateList(ctx, service.LocalList{Title: "Groceries"})
	require.NoError(t, err)

	due := time.Date(2024, 2, 15, 8, 30, 0, 0, time.UTC)
	done := int64(5)
	milk, err := b.CreateTask(ctx, list, service.LocalTask{Title: "Milk", Note: "2 litres", Due: &due})
	require.NoError(t, err)
	eggs, err := b.CreateTask(ctx, list, service.LocalTask{Title: "Eggs", Completed: &done})
	require.NoError(t, err)
	assert.NotEqual(t, milk.RemoteID, eggs.RemoteID)

	tasks, err := b.ListChangedTasks(ctx, list)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, milk, tasks[0])
	assert.Equal(t, "2024-02-15", tasks[0].Due)
	assert.Equal(t, "2 litres", tasks[0].Notes)
	assert.True(t, tasks[1].Completed)

	milk.Title = "Oat milk"
	milk.Completed = true
	milk.Due = ""
	fresh, err := b.UpdateTask(ctx, list, milk)
	require.NoError(t, err)
	assert.Equal(t, "Oat milk", fresh.Title)
	assert.True(t, fresh.Completed)
	assert.Empty(t, fresh.Due)
	assert.Greater(t, fresh.Updated, milk.Updated)

	require.NoError(t, b.DeleteTask(ctx, list, eggs))
	assert.True(t, service.IsNotFound(b.DeleteTask(ctx, list, eggs)))
	_, err = b.UpdateTask(ctx, list, eggs)
	assert.True(t, service.IsNotFound(err))

	tasks, err = b.ListChangedTasks(ctx, list)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, fresh, tasks[0])
}

func TestHandWrittenFile(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	path := filepath.Join(dir, "Chores.org")
	content := strings.Join([]string{
		"#+TITLE: Chores",
		"",
		"* TODO Laundry",
		"* TODO Laundry",
		"* DONE Dishes",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	mtime := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Chores", lists[0].Title)
	assert.Equal(t, mtime.UnixMilli(), lists[0].Updated)

	tasks, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, mtime.UnixMilli(), task.Updated)
	}
	assert.NotEqual(t, tasks[0].RemoteID, tasks[1].RemoteID, "duplicate titles get distinct keys")

	// The first read stored ids and stamps, so reading again yields the
	// same tasks.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ":ID: "+tasks[0].RemoteID)
	again, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	assert.Equal(t, tasks, again)

	tasks[2].Title = "Dishes and pans"
	_, err = b.UpdateTask(ctx, lists[0], tasks[2])
	require.NoError(t, err)

	after, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, tasks[0], after[0])
	assert.Equal(t, tasks[1], after[1])
	assert.Equal(t, "Dishes and pans", after[2].Title)

	lists, err = b.ListAllLists(ctx)
	require.NoError(t, err)
	assert.Equal(t, mtime.UnixMilli(), lists[0].Updated)
}

func TestHandEditDetectedByChecksum(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	list, err := b.CreateList(ctx, service.LocalList{Title: "Groceries"})
	require.NoError(t, err)
	milk, err := b.CreateTask(ctx, list, service.LocalTask{Title: "Milk"})
	require.NoError(t, err)

	path := filepath.Join(dir, list.RemoteID)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "* TODO Milk", "* DONE Milk", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))
	mtime := time.UnixMilli(1_800_000_000_000)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	tasks, err := b.ListChangedTasks(ctx, list)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, milk.RemoteID, tasks[0].RemoteID)
	assert.True(t, tasks[0].Completed)
	assert.Equal(t, mtime.UnixMilli(), tasks[0].Updated)
}

func TestHandEditKeepsOtherEntryStamps(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	path := filepath.Join(dir, "Home.org")
	require.NoError(t, os.WriteFile(path, []byte("* TODO Milk\n* TODO Eggs\n"), 0644))
	imported := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, os.Chtimes(path, imported, imported))

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	before, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	require.Len(t, before, 2)

	// Only Eggs is edited by hand.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "* TODO Eggs", "* DONE Eggs", 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))
	later := time.UnixMilli(1_700_000_500_000)
	require.NoError(t, os.Chtimes(path, later, later))

	lists, err = b.ListAllLists(ctx)
	require.NoError(t, err)
	assert.Equal(t, imported.UnixMilli(), lists[0].Updated)
	after, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0], "untouched entry keeps its stamp")
	assert.Equal(t, before[1].RemoteID, after[1].RemoteID)
	assert.True(t, after[1].Completed)
	assert.Equal(t, later.UnixMilli(), after[1].Updated)
}

func TestTaskIDsAreUniqueAcrossFiles(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	for _, name := range []string{"Home.org", "Work.org"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("* TODO Milk\n"), 0644))
	}

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	ids := make(map[string]bool)
	for _, l := range lists {
		tasks, err := b.ListChangedTasks(ctx, l)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "Milk", tasks[0].Title)
		ids[tasks[0].RemoteID] = true

		again, err := b.ListChangedTasks(ctx, l)
		require.NoError(t, err)
		assert.Equal(t, tasks, again)
	}
	assert.Len(t, ids, 2)
}

func TestCopiedFileGetsFreshIDs(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	list, err := b.CreateList(ctx, service.LocalList{Title: "Groceries"})
	require.NoError(t, err)
	milk, err := b.CreateTask(ctx, list, service.LocalTask{Title: "Milk"})
	require.NoError(t, err)

	orig := filepath.Join(dir, list.RemoteID)
	data, err := os.ReadFile(orig)
	require.NoError(t, err)
	old := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, os.Chtimes(orig, old, old))

	// The copy sorts before the original but is newer.
	cp := filepath.Join(dir, "A copy.org")
	require.NoError(t, os.WriteFile(cp, data, 0644))
	newer := time.UnixMilli(1_700_000_900_000)
	require.NoError(t, os.Chtimes(cp, newer, newer))

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	byName := make(map[string]service.RemoteList)
	for _, l := range lists {
		byName[l.RemoteID] = l
	}
	origTasks, err := b.ListChangedTasks(ctx, byName[list.RemoteID])
	require.NoError(t, err)
	require.Len(t, origTasks, 1)
	assert.Equal(t, milk.RemoteID, origTasks[0].RemoteID)

	copyTasks, err := b.ListChangedTasks(ctx, byName["A copy.org"])
	require.NoError(t, err)
	require.Len(t, copyTasks, 1)
	assert.NotEqual(t, milk.RemoteID, copyTasks[0].RemoteID)
	assert.Equal(t, "Milk", copyTasks[0].Title)
}

func TestDuplicateIDsWithinFile(t *testing.T) {
	b, dir := newTestBackend(t)
	ctx := context.Background()

	content := "* TODO Milk\n:PROPERTIES:\n:ID: same\n:END:\n* TODO Eggs\n:PROPERTIES:\n:ID: same\n:END:\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Home.org"), []byte(content), 0644))

	lists, err := b.ListAllLists(ctx)
	require.NoError(t, err)
	tasks, err := b.ListChangedTasks(ctx, lists[0])
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "same", tasks[0].RemoteID)
	assert.NotEqual(t, "same", tasks[1].RemoteID)
}

func TestCorruptFileIsProtocolError(t *testing.T) {
	b, dir := newTestBackend(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Bad.org"),
		[]byte("* TODO x\n:PROPERTIES:\n:ID: 1\n"), 0644))

	_, err := b.ListAllLists(context.Background())
	assert.True(t, service.IsKind(err, service.Protocol))
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"Groceries":  "Groceries",
		" a/b/c ":    "a_b_c",
		"":           "untitled",
		"../escape":  "_escape",
		"...":        "untitled",
		".dotfile":   "dotfile",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}
