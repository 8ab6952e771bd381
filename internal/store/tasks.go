package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/service"
)

const taskColumns = `id, list_id, title, note, due, completed, updated`

func scanTask(row interface{ Scan(...any) error }) (service.LocalTask, error) {
	var (
		t         service.LocalTask
		due       sql.NullInt64
		completed sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.ListID, &t.Title, &t.Note, &due, &completed, &t.Updated); err != nil {
		return service.LocalTask{}, err
	}
	if due.Valid {
		d := time.UnixMilli(due.Int64)
		t.Due = &d
	}
	if completed.Valid {
		c := completed.Int64
		t.Completed = &c
	}
	return t, nil
}

func dueArg(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func completedArg(c *int64) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *c, Valid: true}
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]service.LocalTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []service.LocalTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a task on behalf of the user, stamped with the current time.
func (s *Store) CreateTask(ctx context.Context, listID int64, title, note string) (service.LocalTask, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return service.LocalTask{}, err
	}
	t := service.LocalTask{ListID: listID, Title: title, Note: note, Updated: s.bump(0)}
	if err := s.InsertTask(ctx, &t); err != nil {
		return service.LocalTask{}, err
	}
	return t, nil
}

// InsertTask inserts t as given, including its Updated value, and sets t.ID.
func (s *Store) InsertTask(ctx context.Context, t *service.LocalTask) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (list_id, title, note, due, completed, updated) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ListID, t.Title, t.Note, dueArg(t.Due), completedArg(t.Completed), t.Updated)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read task id: %w", err)
	}
	t.ID = id
	return nil
}

// GetTask returns the task with the given id, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id int64) (service.LocalTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.LocalTask{}, ErrNotFound
	}
	if err != nil {
		return service.LocalTask{}, fmt.Errorf("failed to load task %d: %w", id, err)
	}
	return t, nil
}

// TasksInList returns the tasks of one list ordered by id.
func (s *Store) TasksInList(ctx context.Context, listID int64) ([]service.LocalTask, error) {
	tasks, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE list_id = ? ORDER BY id`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks of list %d: %w", listID, err)
	}
	return tasks, nil
}

// EditTask applies fn to a task on behalf of the user and bumps Updated.
func (s *Store) EditTask(ctx context.Context, id int64, fn func(t *service.LocalTask)) (service.LocalTask, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return service.LocalTask{}, err
	}
	prev := t.Updated
	fn(&t)
	t.ID = id
	t.Updated = s.bump(prev)

	ok, err := s.UpdateTaskIf(ctx, t, prev)
	if err != nil {
		return service.LocalTask{}, err
	}
	if !ok {
		return service.LocalTask{}, fmt.Errorf("task %d changed concurrently", id)
	}
	return t, nil
}

// CompleteTask marks a task completed now, on behalf of the user.
func (s *Store) CompleteTask(ctx context.Context, id int64) (service.LocalTask, error) {
	return s.EditTask(ctx, id, func(t *service.LocalTask) {
		if t.Completed == nil {
			c := s.now().UnixMilli()
			t.Completed = &c
		}
	})
}

// UpdateTaskIf writes t only if the stored Updated still equals expected.
// It reports whether the row was written.
func (s *Store) UpdateTaskIf(ctx context.Context, t service.LocalTask, expected int64) (bool, error) {
	n, err := s.execOne(ctx, `
	UPDATE tasks SET list_id = ?, title = ?, note = ?, due = ?, completed = ?, updated = ?
	WHERE id = ? AND updated = ?`,
		t.ListID, t.Title, t.Note, dueArg(t.Due), completedArg(t.Completed), t.Updated,
		t.ID, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update task %d: %w", t.ID, err)
	}
	return n == 1, nil
}

// DeleteTask removes a task, tombstoning every shadow row that points at it.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE remote_tasks SET deleted = 1 WHERE local_id = ?`, id); err != nil {
			return fmt.Errorf("failed to tombstone task %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete task %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// TasksWithoutShadow returns tasks of a list that have never been synced to
// the given account and service.
func (s *Store) TasksWithoutShadow(ctx context.Context, listID int64, account, svc string) ([]service.LocalTask, error) {
	tasks, err := s.queryTasks(ctx, `
	SELECT `+taskColumns+` FROM tasks
	WHERE list_id = ? AND id NOT IN (
		SELECT local_id FROM remote_tasks
		WHERE account = ? AND service = ? AND local_id IS NOT NULL
	)
	ORDER BY id`, listID, account, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsynced tasks: %w", err)
	}
	return tasks, nil
}
