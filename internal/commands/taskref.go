package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tasksync/internal/service"
	"tasksync/internal/store"
)

// PageSize is the number of tasks per page of `list`.
const PageSize = 100

// TaskRef is a parsed task reference: "3" is the third open task of the
// default list, "a2" the second open task of the list printed as "a".
type TaskRef struct {
	Letter    rune // 0 if no letter
	TaskNum   int  // 1-based
	HasLetter bool
}

func (r TaskRef) String() string {
	if r.HasLetter {
		return fmt.Sprintf("%c%d", r.Letter, r.TaskNum)
	}
	return strconv.Itoa(r.TaskNum)
}

var (
	// ErrTaskRefRequired indicates no task reference was provided.
	ErrTaskRefRequired = errors.New("task reference required")

	errNoLists        = errors.New("no lists (run: tasksync addlist <name>)")
	errLetterNotFound = errors.New("list letter not found")
	errOutOfRange     = errors.New("task number out of range")
	errListAndLetter  = errors.New("cannot use both --list and list letter")
)

// ParseTaskRef parses a single reference from args[0]. A letter must be
// attached to its number ("a1"), never separated ("a 1").
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}
	return parseToken(args[0])
}

// ParseTaskRefs parses every argument as a reference.
func ParseTaskRefs(args []string) ([]TaskRef, error) {
	if len(args) == 0 {
		return nil, ErrTaskRefRequired
	}
	refs := make([]TaskRef, 0, len(args))
	for _, arg := range args {
		ref, err := parseToken(arg)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseToken(tok string) (TaskRef, error) {
	if isAllDigits(tok) {
		num, err := strconv.Atoi(tok)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", tok)
		}
		return TaskRef{TaskNum: num}, nil
	}
	if len(tok) > 1 && isLetter(rune(tok[0])) && isAllDigits(tok[1:]) {
		num, err := strconv.Atoi(tok[1:])
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", tok)
		}
		return TaskRef{Letter: rune(tok[0]), TaskNum: num, HasLetter: true}, nil
	}
	return TaskRef{}, fmt.Errorf("invalid task reference: %s", tok)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z'
}

// defaultList is the oldest local list. Lists synced from Google Tasks
// arrive in service order, so this is usually the account's default list.
func defaultList(ctx context.Context, st *store.Store) (service.LocalList, error) {
	lists, err := st.AllLists(ctx)
	if err != nil {
		return service.LocalList{}, err
	}
	if len(lists) == 0 {
		return service.LocalList{}, errNoLists
	}
	return lists[0], nil
}

// openTasks returns the tasks of a list that carry no completion.
func openTasks(ctx context.Context, st *store.Store, listID int64) ([]service.LocalTask, error) {
	all, err := st.TasksInList(ctx, listID)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, t := range all {
		if !t.IsCompleted() {
			open = append(open, t)
		}
	}
	return open, nil
}

// lettered returns the non-default lists that have open tasks, in the
// order `list` assigns them the letters a to z.
func lettered(ctx context.Context, st *store.Store) ([]service.LocalList, error) {
	lists, err := st.AllLists(ctx)
	if err != nil {
		return nil, err
	}
	var out []service.LocalList
	for i, l := range lists {
		if i == 0 {
			continue
		}
		open, err := openTasks(ctx, st, l.ID)
		if err != nil {
			return nil, err
		}
		if len(open) > 0 {
			out = append(out, l)
		}
	}
	return out, nil
}

// ResolveListByLetter returns the list printed under letter.
func ResolveListByLetter(ctx context.Context, st *store.Store, letter rune) (service.LocalList, error) {
	lists, err := lettered(ctx, st)
	if err != nil {
		return service.LocalList{}, err
	}
	i := int(letter - 'a')
	if i < 0 || i >= len(lists) {
		return service.LocalList{}, fmt.Errorf("%w: %c", errLetterNotFound, letter)
	}
	return lists[i], nil
}

// resolveTask finds the task a reference points at. listName, when set,
// replaces the default list and must not be combined with a letter.
func resolveTask(ctx context.Context, st *store.Store, listName string, ref TaskRef) (service.LocalTask, error) {
	if listName != "" && ref.HasLetter {
		return service.LocalTask{}, errListAndLetter
	}
	if ref.TaskNum < 1 {
		return service.LocalTask{}, fmt.Errorf("%w: %d", errOutOfRange, ref.TaskNum)
	}

	var (
		list service.LocalList
		err  error
	)
	switch {
	case listName != "":
		list, err = st.ResolveList(ctx, listName)
	case ref.HasLetter:
		list, err = ResolveListByLetter(ctx, st, ref.Letter)
	default:
		list, err = defaultList(ctx, st)
	}
	if err != nil {
		return service.LocalTask{}, err
	}

	open, err := openTasks(ctx, st, list.ID)
	if err != nil {
		return service.LocalTask{}, err
	}
	if ref.TaskNum > len(open) {
		return service.LocalTask{}, fmt.Errorf("%w: %d", errOutOfRange, ref.TaskNum)
	}
	return open[ref.TaskNum-1], nil
}

// resolveTasks resolves every reference before anything is changed, so
// that completing task 1 does not renumber the reference that follows.
func resolveTasks(ctx context.Context, st *store.Store, listName string, refs []TaskRef) ([]service.LocalTask, error) {
	tasks := make([]service.LocalTask, 0, len(refs))
	seen := make(map[int64]bool, len(refs))
	for _, ref := range refs {
		t, err := resolveTask(ctx, st, listName, ref)
		if err != nil {
			return nil, err
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// isUserError reports whether err is the user's mistake rather than a
// failure of the store.
func isUserError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrAmbiguous) ||
		errors.Is(err, errNoLists) ||
		errors.Is(err, errLetterNotFound) ||
		errors.Is(err, errOutOfRange) ||
		errors.Is(err, errListAndLetter) ||
		errors.Is(err, ErrTaskRefRequired)
}
