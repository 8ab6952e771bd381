package store

import (
	"context"
	"database/sql"
	"fmt"

	"tasksync/internal/service"
)

// ListShadows returns every list shadow row for an account and service.
func (s *Store) ListShadows(ctx context.Context, account, svc string) ([]service.RemoteList, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT local_id, remote_id, title, updated, deleted
	FROM remote_lists WHERE account = ? AND service = ?
	ORDER BY id`, account, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to load list shadows: %w", err)
	}
	defer rows.Close()

	var shadows []service.RemoteList
	for rows.Next() {
		var (
			r       service.RemoteList
			localID sql.NullInt64
		)
		if err := rows.Scan(&localID, &r.RemoteID, &r.Title, &r.Updated, &r.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan list shadow: %w", err)
		}
		r.LocalID = localID.Int64
		r.Account = account
		r.Service = svc
		shadows = append(shadows, r)
	}
	return shadows, rows.Err()
}

// SaveListShadow upserts a list shadow keyed by (account, service, remote id).
func (s *Store) SaveListShadow(ctx context.Context, r service.RemoteList) error {
	_, err := s.execOne(ctx, `
	INSERT INTO remote_lists (local_id, remote_id, account, service, title, updated, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account, service, remote_id) DO UPDATE SET
		local_id = excluded.local_id,
		title = excluded.title,
		updated = excluded.updated,
		deleted = excluded.deleted`,
		nullInt(r.LocalID), r.RemoteID, r.Account, r.Service, r.Title, r.Updated, boolInt(r.Deleted))
	if err != nil {
		return fmt.Errorf("failed to save list shadow %s: %w", r.RemoteID, err)
	}
	return nil
}

// PurgeListShadow removes a list shadow and the task shadows of that list
// for the same account and service.
func (s *Store) PurgeListShadow(ctx context.Context, r service.RemoteList) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if r.LocalID != 0 {
			if _, err := tx.ExecContext(ctx, `
			DELETE FROM remote_tasks
			WHERE list_local_id = ? AND account = ? AND service = ?`,
				r.LocalID, r.Account, r.Service); err != nil {
				return fmt.Errorf("failed to purge task shadows of %s: %w", r.RemoteID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
		DELETE FROM remote_lists WHERE account = ? AND service = ? AND remote_id = ?`,
			r.Account, r.Service, r.RemoteID); err != nil {
			return fmt.Errorf("failed to purge list shadow %s: %w", r.RemoteID, err)
		}
		return nil
	})
}

// TaskShadows returns the task shadows of one local list for an account and service.
func (s *Store) TaskShadows(ctx context.Context, listLocalID int64, account, svc string) ([]service.RemoteTask, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT local_id, remote_id, list_remote_id, updated, deleted
	FROM remote_tasks WHERE list_local_id = ? AND account = ? AND service = ?
	ORDER BY id`, listLocalID, account, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to load task shadows: %w", err)
	}
	defer rows.Close()

	var shadows []service.RemoteTask
	for rows.Next() {
		var (
			r       service.RemoteTask
			localID sql.NullInt64
		)
		if err := rows.Scan(&localID, &r.RemoteID, &r.ListRemoteID, &r.Updated, &r.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan task shadow: %w", err)
		}
		r.LocalID = localID.Int64
		r.ListLocalID = listLocalID
		r.Account = account
		r.Service = svc
		shadows = append(shadows, r)
	}
	return shadows, rows.Err()
}

// SaveTaskShadow upserts a task shadow keyed by (account, service, remote id).
func (s *Store) SaveTaskShadow(ctx context.Context, r service.RemoteTask) error {
	_, err := s.execOne(ctx, `
	INSERT INTO remote_tasks (local_id, remote_id, list_local_id, list_remote_id, account, service, updated, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account, service, remote_id) DO UPDATE SET
		local_id = excluded.local_id,
		list_local_id = excluded.list_local_id,
		list_remote_id = excluded.list_remote_id,
		updated = excluded.updated,
		deleted = excluded.deleted`,
		nullInt(r.LocalID), r.RemoteID, r.ListLocalID, r.ListRemoteID, r.Account, r.Service,
		r.Updated, boolInt(r.Deleted))
	if err != nil {
		return fmt.Errorf("failed to save task shadow %s: %w", r.RemoteID, err)
	}
	return nil
}

// PurgeTaskShadow removes a task shadow.
func (s *Store) PurgeTaskShadow(ctx context.Context, r service.RemoteTask) error {
	_, err := s.execOne(ctx,
		`DELETE FROM remote_tasks WHERE account = ? AND service = ? AND remote_id = ?`,
		r.Account, r.Service, r.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to purge task shadow %s: %w", r.RemoteID, err)
	}
	return nil
}
