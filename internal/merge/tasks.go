package merge

import (
	"context"
	"fmt"

	"tasksync/internal/service"
)

// MergeTasksWithLocalDB folds the task shadows of one list pair into the
// fetched remote tasks. Backends return a complete listing per list, so a
// shadow with no fetched counterpart is appended with RemotelyDeleted set.
func (e *Engine) MergeTasksWithLocalDB(ctx context.Context, remote []service.RemoteTask, list ListPair) ([]service.RemoteTask, error) {
	shadows, err := e.store.TaskShadows(ctx, list.Local.ID, e.account, e.service)
	if err != nil {
		return nil, err
	}

	byRemote := make(map[string]service.RemoteTask, len(shadows))
	for _, s := range shadows {
		byRemote[s.RemoteID] = s
	}

	merged := make([]service.RemoteTask, 0, len(remote)+len(shadows))
	for _, r := range remote {
		r.ListLocalID = list.Local.ID
		r.ListRemoteID = list.Remote.RemoteID
		r.Account = e.account
		r.Service = e.service
		if s, ok := byRemote[r.RemoteID]; ok {
			r.LocalID = s.LocalID
			r.Deleted = s.Deleted
			delete(byRemote, r.RemoteID)
		}
		merged = append(merged, r)
	}

	for _, s := range shadows {
		if _, ok := byRemote[s.RemoteID]; ok {
			s.RemotelyDeleted = true
			merged = append(merged, s)
		}
	}

	return merged, nil
}

// SynchronizeTasksLocally applies remote task state to the local store for
// one list and returns the pairs that still need a push. Pairs already
// equal after the local step are dropped, as are remotely deleted tasks.
func (e *Engine) SynchronizeTasksLocally(ctx context.Context, merged []service.RemoteTask, list ListPair) ([]TaskPair, error) {
	var pairs []TaskPair

	for _, r := range merged {
		local, err := e.loadTask(ctx, r.LocalID)
		if err != nil {
			return pairs, err
		}

		if local == nil {
			switch {
			case r.RemotelyDeleted:
				if err := e.purgeTask(ctx, r); err != nil {
					return pairs, err
				}
			case r.Deleted:
				// Deleted by the user; the push step deletes it remotely.
			default:
				t := service.LocalTask{ListID: list.Local.ID}
				e.fillLocalTask(&t, r)
				if err := e.store.InsertTask(ctx, &t); err != nil {
					return pairs, err
				}
				r.LocalID = t.ID
				if err := e.store.SaveTaskShadow(ctx, r); err != nil {
					return pairs, err
				}
				e.stats.LocalInserts++
				local = &t
			}
		} else {
			switch {
			case r.RemotelyDeleted:
				if err := ignoreNotFound(e.store.DeleteTask(ctx, local.ID)); err != nil {
					return pairs, err
				}
				e.stats.LocalDeletes++
				if err := e.purgeTask(ctx, r); err != nil {
					return pairs, err
				}
				local = nil
			case local.Updated > r.Updated:
				e.fillRemoteTask(&r, *local)
			case local.Updated == r.Updated:
			default:
				if local, err = e.applyRemoteTask(ctx, *local, r); err != nil {
					return pairs, err
				}
				if local != nil && local.Updated > r.Updated {
					e.fillRemoteTask(&r, *local)
				}
			}
		}

		switch {
		case r.RemotelyDeleted:
		case local != nil && local.Updated == r.Updated:
		default:
			pairs = append(pairs, TaskPair{Local: local, Remote: &r})
		}
	}

	fresh, err := e.store.TasksWithoutShadow(ctx, list.Local.ID, e.account, e.service)
	if err != nil {
		return pairs, err
	}
	for _, t := range fresh {
		pairs = append(pairs, TaskPair{Local: &t})
	}

	return pairs, nil
}

// fillLocalTask copies remote state onto t, keeping the local time of day
// and an earlier completion timestamp.
func (e *Engine) fillLocalTask(t *service.LocalTask, r service.RemoteTask) {
	t.Title = r.Title
	t.Note = r.Notes
	t.ListID = r.ListLocalID

	if r.Due != "" {
		due, err := CombineDateAndTime(r.Due, t.Due, e.loc)
		if err != nil {
			e.logger.Warn("ignoring remote due date", "remote_id", r.RemoteID, "error", err)
		} else {
			t.Due = &due
		}
	} else {
		t.Due = nil
	}

	if r.Completed {
		if t.Completed == nil {
			c := r.Updated
			t.Completed = &c
		}
	} else {
		// Only reached when the remote is strictly newer or the task is new.
		t.Completed = nil
	}

	t.Updated = r.Updated
}

// fillRemoteTask copies the newer local state onto the in-memory record.
// Updated is left alone; the service assigns it on write.
func (e *Engine) fillRemoteTask(r *service.RemoteTask, t service.LocalTask) {
	r.Title = t.Title
	r.Notes = t.Note
	r.Due = DateOf(t.Due, e.loc)
	r.Completed = t.Completed != nil
}

func (e *Engine) applyRemoteTask(ctx context.Context, local service.LocalTask, r service.RemoteTask) (*service.LocalTask, error) {
	prev := local.Updated
	e.fillLocalTask(&local, r)

	ok, err := e.store.UpdateTaskIf(ctx, local, prev)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.stats.Conflicts++
		e.logger.Debug("task changed during pass", "local_id", local.ID)
		return e.loadTask(ctx, local.ID)
	}

	if err := e.store.SaveTaskShadow(ctx, r); err != nil {
		return nil, err
	}
	e.stats.LocalUpdates++
	return &local, nil
}

func (e *Engine) purgeTask(ctx context.Context, r service.RemoteTask) error {
	if err := e.store.PurgeTaskShadow(ctx, r); err != nil {
		return err
	}
	e.stats.ShadowPurges++
	return nil
}

// SynchronizeTasksRemotely pushes task pairs of one list to the backend.
func (e *Engine) SynchronizeTasksRemotely(ctx context.Context, pairs []TaskPair, list ListPair, b service.Backend) error {
	for _, p := range pairs {
		switch {
		case p.Remote == nil:
			if p.Local == nil {
				continue
			}
			local := *p.Local
			if local.Due != nil {
				due := local.Due.In(e.loc)
				local.Due = &due
			}
			created, err := b.CreateTask(ctx, *list.Remote, local)
			if err != nil {
				return fmt.Errorf("create task %q: %w", p.Local.Title, err)
			}
			e.bindTask(&created, p.Local.ID, list)
			if err := e.store.SaveTaskShadow(ctx, created); err != nil {
				return err
			}
			e.stats.RemoteCreates++
			if err := e.stampTask(ctx, *p.Local, created.Updated); err != nil {
				return err
			}

		case p.Remote.Deleted:
			err := b.DeleteTask(ctx, *list.Remote, *p.Remote)
			if err != nil && !service.IsNotFound(err) {
				return fmt.Errorf("delete task %s: %w", p.Remote.RemoteID, err)
			}
			if err == nil {
				e.stats.RemoteDeletes++
			}
			if err := e.purgeTask(ctx, *p.Remote); err != nil {
				return err
			}

		case p.Local == nil:

		case p.Local.Updated > p.Remote.Updated:
			fresh, err := b.UpdateTask(ctx, *list.Remote, *p.Remote)
			if service.IsNotFound(err) {
				if err := ignoreNotFound(e.store.DeleteTask(ctx, p.Local.ID)); err != nil {
					return err
				}
				e.stats.LocalDeletes++
				if err := e.purgeTask(ctx, *p.Remote); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("update task %s: %w", p.Remote.RemoteID, err)
			}
			e.bindTask(&fresh, p.Local.ID, list)
			if err := e.store.SaveTaskShadow(ctx, fresh); err != nil {
				return err
			}
			e.stats.RemoteUpdates++
			if err := e.stampTask(ctx, *p.Local, fresh.Updated); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) bindTask(r *service.RemoteTask, localID int64, list ListPair) {
	r.LocalID = localID
	r.ListLocalID = list.Local.ID
	r.ListRemoteID = list.Remote.RemoteID
	r.Account = e.account
	r.Service = e.service
	r.Deleted = false
	r.RemotelyDeleted = false
}

// stampTask records the updated value the service assigned after a push.
func (e *Engine) stampTask(ctx context.Context, local service.LocalTask, updated int64) error {
	prev := local.Updated
	local.Updated = updated
	ok, err := e.store.UpdateTaskIf(ctx, local, prev)
	if err != nil {
		return err
	}
	if !ok {
		e.stats.Conflicts++
	}
	return nil
}
