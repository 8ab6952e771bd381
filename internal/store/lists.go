package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasksync/internal/service"
)

const listColumns = `id, title, updated, sorting`

func scanList(row interface{ Scan(...any) error }) (service.LocalList, error) {
	var l service.LocalList
	err := row.Scan(&l.ID, &l.Title, &l.Updated, &l.Sorting)
	return l, err
}

func (s *Store) queryLists(ctx context.Context, query string, args ...any) ([]service.LocalList, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []service.LocalList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// CreateList inserts a list on behalf of the user, stamped with the current time.
func (s *Store) CreateList(ctx context.Context, title string) (service.LocalList, error) {
	l := service.LocalList{Title: title, Updated: s.bump(0)}
	if err := s.InsertList(ctx, &l); err != nil {
		return service.LocalList{}, err
	}
	return l, nil
}

// InsertList inserts l as given, including its Updated value, and sets l.ID.
func (s *Store) InsertList(ctx context.Context, l *service.LocalList) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (title, updated, sorting) VALUES (?, ?, ?)`,
		l.Title, l.Updated, l.Sorting)
	if err != nil {
		return fmt.Errorf("failed to insert list: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read list id: %w", err)
	}
	l.ID = id
	return nil
}

// GetList returns the list with the given id, or ErrNotFound.
func (s *Store) GetList(ctx context.Context, id int64) (service.LocalList, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.LocalList{}, ErrNotFound
	}
	if err != nil {
		return service.LocalList{}, fmt.Errorf("failed to load list %d: %w", id, err)
	}
	return l, nil
}

// AllLists returns every list ordered by id.
func (s *Store) AllLists(ctx context.Context) ([]service.LocalList, error) {
	lists, err := s.queryLists(ctx, `SELECT `+listColumns+` FROM lists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load lists: %w", err)
	}
	return lists, nil
}

// ResolveList finds a list by title (case-insensitive, trimmed).
func (s *Store) ResolveList(ctx context.Context, name string) (service.LocalList, error) {
	lists, err := s.AllLists(ctx)
	if err != nil {
		return service.LocalList{}, err
	}

	want := strings.ToLower(strings.TrimSpace(name))
	var matches []service.LocalList
	for _, l := range lists {
		if strings.ToLower(strings.TrimSpace(l.Title)) == want {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return service.LocalList{}, fmt.Errorf("list %q: %w", name, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return service.LocalList{}, fmt.Errorf("list %q: %w", name, ErrAmbiguous)
	}
}

// RenameList changes a list title on behalf of the user and bumps Updated.
func (s *Store) RenameList(ctx context.Context, id int64, title string) (service.LocalList, error) {
	l, err := s.GetList(ctx, id)
	if err != nil {
		return service.LocalList{}, err
	}
	prev := l.Updated
	l.Title = title
	l.Updated = s.bump(prev)

	ok, err := s.UpdateListIf(ctx, l, prev)
	if err != nil {
		return service.LocalList{}, err
	}
	if !ok {
		return service.LocalList{}, fmt.Errorf("list %d changed concurrently", id)
	}
	return l, nil
}

// UpdateListIf writes l only if the stored Updated still equals expected.
// It reports whether the row was written.
func (s *Store) UpdateListIf(ctx context.Context, l service.LocalList, expected int64) (bool, error) {
	n, err := s.execOne(ctx,
		`UPDATE lists SET title = ?, updated = ?, sorting = ? WHERE id = ? AND updated = ?`,
		l.Title, l.Updated, l.Sorting, l.ID, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update list %d: %w", l.ID, err)
	}
	return n == 1, nil
}

// DeleteList removes a list and its tasks. Every shadow row pointing at the
// list or one of its tasks is tombstoned in the same transaction, so the
// deletion is pushed to each backend on its next pass.
func (s *Store) DeleteList(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE remote_lists SET deleted = 1 WHERE local_id = ?`, id); err != nil {
			return fmt.Errorf("failed to tombstone list %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE remote_tasks SET deleted = 1
			 WHERE local_id IN (SELECT id FROM tasks WHERE list_id = ?)`, id); err != nil {
			return fmt.Errorf("failed to tombstone tasks of list %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE list_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete tasks of list %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete list %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListsWithoutShadow returns local lists that have never been synced to
// the given account and service.
func (s *Store) ListsWithoutShadow(ctx context.Context, account, svc string) ([]service.LocalList, error) {
	lists, err := s.queryLists(ctx, `
	SELECT `+listColumns+` FROM lists
	WHERE id NOT IN (
		SELECT local_id FROM remote_lists
		WHERE account = ? AND service = ? AND local_id IS NOT NULL
	)
	ORDER BY id`, account, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsynced lists: %w", err)
	}
	return lists, nil
}
