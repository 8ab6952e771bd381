package commands

import (
	"context"
	"errors"
	"testing"

	"tasksync/internal/store"
)

func TestParseTaskRef_NumericOnly(t *testing.T) {
	ref, err := ParseTaskRef([]string{"5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.HasLetter {
		t.Error("expected HasLetter to be false")
	}
	if ref.TaskNum != 5 {
		t.Errorf("expected TaskNum 5, got %d", ref.TaskNum)
	}
}

func TestParseTaskRef_CombinedRef(t *testing.T) {
	ref, err := ParseTaskRef([]string{"a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ref.HasLetter {
		t.Error("expected HasLetter to be true")
	}
	if ref.Letter != 'a' {
		t.Errorf("expected Letter 'a', got %c", ref.Letter)
	}
	if ref.TaskNum != 1 {
		t.Errorf("expected TaskNum 1, got %d", ref.TaskNum)
	}
}

func TestParseTaskRef_CombinedRefMultiDigit(t *testing.T) {
	ref, err := ParseTaskRef([]string{"b12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ref.HasLetter {
		t.Error("expected HasLetter to be true")
	}
	if ref.Letter != 'b' {
		t.Errorf("expected Letter 'b', got %c", ref.Letter)
	}
	if ref.TaskNum != 12 {
		t.Errorf("expected TaskNum 12, got %d", ref.TaskNum)
	}
}

func TestParseTaskRef_SeparatedRef_Error(t *testing.T) {
	_, err := ParseTaskRef([]string{"c", "3"})
	if err == nil {
		t.Fatal("expected error for separated ref")
	}
	expectedMsg := "invalid task reference: c"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestParseTaskRef_LetterOnly_Error(t *testing.T) {
	_, err := ParseTaskRef([]string{"a"})
	if err == nil {
		t.Fatal("expected error for letter only")
	}
	expectedMsg := "invalid task reference: a"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestParseTaskRef_NoArgs_Error(t *testing.T) {
	_, err := ParseTaskRef([]string{})
	if err == nil {
		t.Fatal("expected error for no args")
	}
	if err != ErrTaskRefRequired {
		t.Errorf("expected ErrTaskRefRequired, got %v", err)
	}
}

func TestParseTaskRef_InvalidRef_Error(t *testing.T) {
	_, err := ParseTaskRef([]string{"abc"})
	if err == nil {
		t.Fatal("expected error for invalid ref")
	}
	expectedMsg := "invalid task reference: abc"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestParseTaskRef_UppercaseLetter_Error(t *testing.T) {
	// Uppercase letters are not valid list letters
	_, err := ParseTaskRef([]string{"A1"})
	if err == nil {
		t.Fatal("expected error for uppercase letter")
	}
}

func TestParseTaskRef_LastLetter(t *testing.T) {
	ref, err := ParseTaskRef([]string{"z99"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ref.HasLetter {
		t.Error("expected HasLetter to be true")
	}
	if ref.Letter != 'z' {
		t.Errorf("expected Letter 'z', got %c", ref.Letter)
	}
	if ref.TaskNum != 99 {
		t.Errorf("expected TaskNum 99, got %d", ref.TaskNum)
	}
}

func TestParseTaskRef_SeparatedWithNonDigitSecond_Error(t *testing.T) {
	_, err := ParseTaskRef([]string{"a", "xyz"})
	if err == nil {
		t.Fatal("expected error for non-digit second arg")
	}
}

func TestParseTaskRefs_Mixed(t *testing.T) {
	refs, err := ParseTaskRefs([]string{"a1", "2", "b3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %d", len(refs))
	}

	if !refs[0].HasLetter || refs[0].Letter != 'a' || refs[0].TaskNum != 1 {
		t.Errorf("unexpected ref[0]: %#v", refs[0])
	}
	if refs[1].HasLetter || refs[1].TaskNum != 2 {
		t.Errorf("unexpected ref[1]: %#v", refs[1])
	}
	if !refs[2].HasLetter || refs[2].Letter != 'b' || refs[2].TaskNum != 3 {
		t.Errorf("unexpected ref[2]: %#v", refs[2])
	}
}

func TestParseTaskRefs_TrailingLetter_Error(t *testing.T) {
	_, err := ParseTaskRefs([]string{"a1", "b"})
	if err == nil {
		t.Fatal("expected error for trailing letter")
	}
	expectedMsg := "invalid task reference: b"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestParseTaskRefs_InvalidToken_Error(t *testing.T) {
	_, err := ParseTaskRefs([]string{"1", "abc"})
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
	expectedMsg := "invalid task reference: abc"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestTaskRef_String(t *testing.T) {
	if got := (TaskRef{TaskNum: 3}).String(); got != "3" {
		t.Errorf("expected %q, got %q", "3", got)
	}
	if got := (TaskRef{Letter: 'b', TaskNum: 12, HasLetter: true}).String(); got != "b12" {
		t.Errorf("expected %q, got %q", "b12", got)
	}
}

// refStore holds Inbox (default) with two open tasks and one completed
// task, an empty list, and Work with one open task.
func refStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	inbox, _ := st.CreateList(ctx, "Inbox")
	_, _ = st.CreateList(ctx, "Empty")
	work, _ := st.CreateList(ctx, "Work")

	done, _ := st.CreateTask(ctx, inbox.ID, "Done already", "")
	if _, err := st.CompleteTask(ctx, done.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, _ = st.CreateTask(ctx, inbox.ID, "Call mom", "")
	_, _ = st.CreateTask(ctx, inbox.ID, "Pay rent", "")
	_, _ = st.CreateTask(ctx, work.ID, "Report", "")
	return st
}

func TestResolveTask(t *testing.T) {
	st := refStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		listName string
		ref      TaskRef
		want     string
		wantErr  error
	}{
		{name: "default list skips completed", ref: TaskRef{TaskNum: 1}, want: "Call mom"},
		{name: "second open task", ref: TaskRef{TaskNum: 2}, want: "Pay rent"},
		{name: "letter skips empty lists", ref: TaskRef{Letter: 'a', TaskNum: 1, HasLetter: true}, want: "Report"},
		{name: "named list", listName: "work", ref: TaskRef{TaskNum: 1}, want: "Report"},
		{name: "out of range", ref: TaskRef{TaskNum: 3}, wantErr: errOutOfRange},
		{name: "zero", ref: TaskRef{TaskNum: 0}, wantErr: errOutOfRange},
		{name: "unknown letter", ref: TaskRef{Letter: 'b', TaskNum: 1, HasLetter: true}, wantErr: errLetterNotFound},
		{name: "list and letter", listName: "Work", ref: TaskRef{Letter: 'a', TaskNum: 1, HasLetter: true}, wantErr: errListAndLetter},
		{name: "unknown list", listName: "Nope", ref: TaskRef{TaskNum: 1}, wantErr: store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTask(ctx, st, tt.listName, tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !isUserError(err) {
					t.Errorf("expected %v to be a user error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Title != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Title)
			}
		})
	}
}

func TestResolveTasks_Deduplicates(t *testing.T) {
	st := refStore(t)
	tasks, err := resolveTasks(context.Background(), st, "", []TaskRef{{TaskNum: 1}, {TaskNum: 1}, {TaskNum: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestDefaultList_NoLists(t *testing.T) {
	st, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	_, err = defaultList(context.Background(), st)
	if !errors.Is(err, errNoLists) {
		t.Errorf("expected errNoLists, got %v", err)
	}
}
