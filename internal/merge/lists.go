package merge

import (
	"context"
	"fmt"

	"tasksync/internal/service"
)

// MergeListsWithLocalDB folds the stored shadow rows into the fetched remote
// lists. Matching shadows contribute their local id and tombstone. Shadows the
// backend no longer reports are appended with RemotelyDeleted set, since the
// backend always enumerates every list. The input slice is not modified.
func (e *Engine) MergeListsWithLocalDB(ctx context.Context, remote []service.RemoteList) ([]service.RemoteList, error) {
	shadows, err := e.store.ListShadows(ctx, e.account, e.service)
	if err != nil {
		return nil, err
	}

	byRemote := make(map[string]service.RemoteList, len(shadows))
	for _, s := range shadows {
		byRemote[s.RemoteID] = s
	}

	merged := make([]service.RemoteList, 0, len(remote)+len(shadows))
	for _, r := range remote {
		r.Account = e.account
		r.Service = e.service
		if s, ok := byRemote[r.RemoteID]; ok {
			r.LocalID = s.LocalID
			r.Deleted = s.Deleted
			delete(byRemote, r.RemoteID)
		}
		merged = append(merged, r)
	}

	// Walk shadows rather than the map to keep the order stable.
	for _, s := range shadows {
		if _, ok := byRemote[s.RemoteID]; ok {
			s.RemotelyDeleted = true
			merged = append(merged, s)
		}
	}

	e.logger.Debug("merged lists", "fetched", len(remote), "merged", len(merged))
	return merged, nil
}

// SynchronizeListsLocally applies remote list state to the local store and
// returns the pairs that drive the push step. Remotely deleted lists are
// resolved here and never paired. Local lists with no shadow for this
// account and service are paired with a nil remote.
func (e *Engine) SynchronizeListsLocally(ctx context.Context, merged []service.RemoteList) ([]ListPair, error) {
	var pairs []ListPair

	for _, r := range merged {
		local, err := e.loadList(ctx, r.LocalID)
		if err != nil {
			return pairs, err
		}

		if local == nil {
			switch {
			case r.RemotelyDeleted:
				// Gone on both sides.
				if err := e.purgeList(ctx, r); err != nil {
					return pairs, err
				}
			case r.Deleted:
				// Deleted by the user; the push step deletes it remotely.
			default:
				l := service.LocalList{Title: r.Title, Updated: r.Updated}
				if err := e.store.InsertList(ctx, &l); err != nil {
					return pairs, err
				}
				r.LocalID = l.ID
				if err := e.store.SaveListShadow(ctx, r); err != nil {
					return pairs, err
				}
				e.stats.LocalInserts++
				e.logger.Debug("inserted list from remote", "remote_id", r.RemoteID, "local_id", l.ID)
				local = &l
			}
		} else {
			switch {
			case r.RemotelyDeleted:
				if err := ignoreNotFound(e.store.DeleteList(ctx, local.ID)); err != nil {
					return pairs, err
				}
				e.stats.LocalDeletes++
				if err := e.purgeList(ctx, r); err != nil {
					return pairs, err
				}
				e.logger.Debug("deleted list removed remotely", "remote_id", r.RemoteID, "local_id", local.ID)
				local = nil
			case local.Updated > r.Updated:
				// Pushed later; the service assigns the new updated value.
				r.Title = local.Title
			case local.Updated == r.Updated:
			default:
				if local, err = e.applyRemoteList(ctx, *local, r); err != nil {
					return pairs, err
				}
				if local != nil && local.Updated > r.Updated {
					r.Title = local.Title
				}
			}
		}

		if !r.RemotelyDeleted {
			pairs = append(pairs, ListPair{Local: local, Remote: &r})
		}
	}

	fresh, err := e.store.ListsWithoutShadow(ctx, e.account, e.service)
	if err != nil {
		return pairs, err
	}
	for _, l := range fresh {
		pairs = append(pairs, ListPair{Local: &l})
	}

	return pairs, nil
}

// applyRemoteList overwrites the local list with the newer remote state.
// When the conditional update loses to a concurrent edit, the reloaded row
// is returned and the remote state is left for the next pass.
func (e *Engine) applyRemoteList(ctx context.Context, local service.LocalList, r service.RemoteList) (*service.LocalList, error) {
	prev := local.Updated
	local.Title = r.Title
	local.Updated = r.Updated

	ok, err := e.store.UpdateListIf(ctx, local, prev)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.stats.Conflicts++
		e.logger.Debug("list changed during pass", "local_id", local.ID)
		reloaded, err := e.loadList(ctx, local.ID)
		if err != nil {
			return nil, err
		}
		return reloaded, nil
	}

	if err := e.store.SaveListShadow(ctx, r); err != nil {
		return nil, err
	}
	e.stats.LocalUpdates++
	return &local, nil
}

func (e *Engine) purgeList(ctx context.Context, r service.RemoteList) error {
	if err := e.store.PurgeListShadow(ctx, r); err != nil {
		return err
	}
	e.stats.ShadowPurges++
	return nil
}

// SynchronizeListsRemotely pushes the pairs to the backend and returns the
// pairs that are live on both sides afterwards. A transport error aborts
// the push; writes already made stay valid for the next pass.
func (e *Engine) SynchronizeListsRemotely(ctx context.Context, pairs []ListPair, b service.Backend) ([]ListPair, error) {
	var synced []ListPair

	for _, p := range pairs {
		switch {
		case p.Remote == nil:
			if p.Local == nil {
				continue
			}
			created, err := b.CreateList(ctx, *p.Local)
			if err != nil {
				return synced, fmt.Errorf("create list %q: %w", p.Local.Title, err)
			}
			created.LocalID = p.Local.ID
			created.Account = e.account
			created.Service = e.service
			if err := e.store.SaveListShadow(ctx, created); err != nil {
				return synced, err
			}
			e.stats.RemoteCreates++
			local, err := e.stampList(ctx, *p.Local, created.Updated)
			if err != nil {
				return synced, err
			}
			if local != nil {
				synced = append(synced, ListPair{Local: local, Remote: &created})
			}

		case p.Remote.Deleted:
			err := b.DeleteList(ctx, *p.Remote)
			if err != nil && !service.IsNotFound(err) {
				return synced, fmt.Errorf("delete list %s: %w", p.Remote.RemoteID, err)
			}
			if err == nil {
				e.stats.RemoteDeletes++
			}
			if err := e.purgeList(ctx, *p.Remote); err != nil {
				return synced, err
			}

		case p.Local == nil:
			// Only reachable for a tombstone, handled above.

		case p.Local.Updated > p.Remote.Updated:
			fresh, err := b.UpdateList(ctx, *p.Remote)
			if service.IsNotFound(err) {
				if err := e.dropList(ctx, *p.Local, *p.Remote); err != nil {
					return synced, err
				}
				continue
			}
			if err != nil {
				return synced, fmt.Errorf("update list %s: %w", p.Remote.RemoteID, err)
			}
			fresh.LocalID = p.Remote.LocalID
			fresh.Account = e.account
			fresh.Service = e.service
			fresh.Deleted = false
			if err := e.store.SaveListShadow(ctx, fresh); err != nil {
				return synced, err
			}
			e.stats.RemoteUpdates++
			local, err := e.stampList(ctx, *p.Local, fresh.Updated)
			if err != nil {
				return synced, err
			}
			if local != nil {
				synced = append(synced, ListPair{Local: local, Remote: &fresh})
			}

		default:
			synced = append(synced, p)
		}
	}

	return synced, nil
}

// dropList resolves a list the backend reported missing during a push:
// remote deletion wins over the local edit.
func (e *Engine) dropList(ctx context.Context, local service.LocalList, r service.RemoteList) error {
	if err := ignoreNotFound(e.store.DeleteList(ctx, local.ID)); err != nil {
		return err
	}
	e.stats.LocalDeletes++
	return e.purgeList(ctx, r)
}

// stampList records the updated value the service assigned after a push.
func (e *Engine) stampList(ctx context.Context, local service.LocalList, updated int64) (*service.LocalList, error) {
	prev := local.Updated
	local.Updated = updated
	ok, err := e.store.UpdateListIf(ctx, local, prev)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.stats.Conflicts++
		return e.loadList(ctx, local.ID)
	}
	return &local, nil
}
