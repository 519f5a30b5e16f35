package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Create stores a new record and indexes it. An empty ID gets a UUID v7.
// Creating an id that already exists returns ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, rec *types.Record) (*types.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.state(ctx); err != nil {
		return nil, err
	}

	rec = rec.Clone()
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating UUID: %w", err)
		}
		rec.ID = id.String()
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, types.ErrInvalidID
	}
	now := r.now().UTC()
	rec.Collection = r.collection
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.rebuildMu.RLock()
	defer r.rebuildMu.RUnlock()

	_, err := r.primary.Get(ctx, rec.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("creating %s: %w", rec.ID, types.ErrAlreadyExists)
	case !errors.Is(err, types.ErrNotFound):
		return nil, storeErr("creating record", err)
	}
	if err := r.primary.Put(ctx, rec); err != nil {
		return nil, storeErr("creating record", err)
	}

	if err := r.indexNew(rec); err != nil {
		r.rollback(ctx, nil, rec)
		return nil, storeErr("indexing record", err)
	}
	r.log.Debug("record_created", "id", rec.ID, "date", rec.DateKey(r.loc))
	return rec, nil
}

// Update replaces an existing record and moves its index entries when the
// date or group changed. CreatedAt is kept from the stored record.
func (r *Repository) Update(ctx context.Context, rec *types.Record) (*types.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, types.ErrInvalidID
	}
	if _, err := r.state(ctx); err != nil {
		return nil, err
	}

	r.rebuildMu.RLock()
	defer r.rebuildMu.RUnlock()

	old, err := r.primary.Get(ctx, rec.ID)
	if err != nil {
		return nil, storeErr("updating "+rec.ID, err)
	}
	rec = rec.Clone()
	rec.Collection = r.collection
	rec.CreatedAt = old.CreatedAt
	rec.UpdatedAt = r.now().UTC()

	if err := r.primary.Put(ctx, rec); err != nil {
		return nil, storeErr("updating record", err)
	}
	if err := r.indexMoved(old, rec); err != nil {
		r.rollback(ctx, old, rec)
		return nil, storeErr("indexing record", err)
	}
	r.log.Debug("record_updated", "id", rec.ID,
		"from", old.DateKey(r.loc), "to", rec.DateKey(r.loc))
	return rec, nil
}

// Delete removes a record and its index entries.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return types.ErrInvalidID
	}
	if _, err := r.state(ctx); err != nil {
		return err
	}

	r.rebuildMu.RLock()
	defer r.rebuildMu.RUnlock()

	old, err := r.primary.Get(ctx, id)
	if err != nil {
		return storeErr("deleting "+id, err)
	}
	if err := r.primary.Delete(ctx, id); err != nil {
		return storeErr("deleting record", err)
	}
	if err := r.unindex(old); err != nil {
		r.rollback(ctx, old, nil)
		return storeErr("unindexing record", err)
	}
	r.log.Debug("record_deleted", "id", id, "date", old.DateKey(r.loc))
	return nil
}

func (r *Repository) indexNew(rec *types.Record) error {
	if err := r.dates.Add(rec.DateKey(r.loc), rec.ID); err != nil {
		return err
	}
	if rec.GroupID != "" {
		return r.groups.Add(rec.GroupID, rec.ID)
	}
	return nil
}

func (r *Repository) indexMoved(old, rec *types.Record) error {
	oldKey, newKey := old.DateKey(r.loc), rec.DateKey(r.loc)
	var err error
	if oldKey != newKey {
		err = r.dates.Move(oldKey, newKey, rec.ID)
	} else {
		err = r.dates.Add(newKey, rec.ID)
	}
	if err != nil {
		return err
	}

	switch {
	case old.GroupID == rec.GroupID && rec.GroupID != "":
		return r.groups.Add(rec.GroupID, rec.ID)
	case old.GroupID == rec.GroupID:
		return nil
	case old.GroupID != "" && rec.GroupID != "":
		return r.groups.Move(old.GroupID, rec.GroupID, rec.ID)
	case old.GroupID != "":
		return r.groups.Remove(old.GroupID, rec.ID)
	default:
		return r.groups.Add(rec.GroupID, rec.ID)
	}
}

func (r *Repository) unindex(old *types.Record) error {
	if err := r.dates.Remove(old.DateKey(r.loc), old.ID); err != nil {
		return err
	}
	if old.GroupID != "" {
		return r.groups.Remove(old.GroupID, old.ID)
	}
	return nil
}

// rollback restores the primary store after the index could not follow a
// write, then drops the entries the write touched so the next read rebuilds
// them. before is nil for a create, after is nil for a delete.
func (r *Repository) rollback(ctx context.Context, before, after *types.Record) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if before == nil {
		err = r.primary.Delete(ctx, after.ID)
	} else {
		err = r.primary.Put(ctx, before)
	}

	var id string
	for _, rec := range []*types.Record{before, after} {
		if rec == nil {
			continue
		}
		id = rec.ID
		err = errors.Join(err, r.dates.Clear(rec.DateKey(r.loc)))
		if rec.GroupID != "" {
			err = errors.Join(err, r.groups.Clear(rec.GroupID))
		}
	}
	if err != nil {
		r.log.Error("write_rollback_failed", "id", id, "error", err)
	}
}
