package repository

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/mesh-intelligence/daybook/internal/index"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// lookup is the outcome of resolving one bucket through an index.
type lookup int

const (
	// lookupHit means the entry listed ids and they were resolved.
	lookupHit lookup = iota
	// lookupEmpty means the entry exists but lists nothing.
	lookupEmpty
	// lookupMiss means the entry is absent, unreadable, or the index
	// could not be read.
	lookupMiss
)

// GetForDate returns the records dated key, ordered by At then ID.
func (r *Repository) GetForDate(ctx context.Context, key types.DateKey) ([]*types.Record, error) {
	if !key.Valid() {
		return nil, types.ErrInvalidDateKey
	}
	return r.getDays(ctx, key, key)
}

// GetInRange returns the records dated within [from, to], ordered by At
// then ID.
func (r *Repository) GetInRange(ctx context.Context, from, to types.DateKey) ([]*types.Record, error) {
	if !from.Valid() || !to.Valid() {
		return nil, types.ErrInvalidDateKey
	}
	if from.After(to) {
		return nil, types.ErrInvalidRange
	}
	return r.getDays(ctx, from, to)
}

// SummaryForDate counts the records of one day by category and status.
func (r *Repository) SummaryForDate(ctx context.Context, key types.DateKey) (types.Summary, error) {
	if !key.Valid() {
		return types.Summary{}, types.ErrInvalidDateKey
	}
	return r.agg.ForDate(ctx, key)
}

// SummaryForRange counts the records of [from, to] by category and status.
func (r *Repository) SummaryForRange(ctx context.Context, from, to types.DateKey) (types.Summary, error) {
	if !from.Valid() || !to.Valid() {
		return types.Summary{}, types.ErrInvalidDateKey
	}
	if from.After(to) {
		return types.Summary{}, types.ErrInvalidRange
	}
	return r.agg.ForRange(ctx, from, to)
}

func (r *Repository) getDays(ctx context.Context, from, to types.DateKey) ([]*types.Record, error) {
	meta, err := r.state(ctx)
	if err != nil {
		return nil, err
	}
	status := meta.Status(r.collection)

	out := []*types.Record{}
	var pending []types.DateKey
	rewrite := false
	for _, key := range types.DateKeysBetween(from, to) {
		if !status.Covers(key) {
			r.metrics.fallback(r.collection, "uncovered")
			pending = append(pending, key)
			continue
		}
		recs, res, err := r.lookupDate(ctx, key)
		if err != nil {
			return nil, err
		}
		switch res {
		case lookupHit:
			out = append(out, recs...)
		case lookupEmpty:
			pending = append(pending, key)
		case lookupMiss:
			r.metrics.fallback(r.collection, "missing")
			pending = append(pending, key)
			rewrite = true
		}
	}
	if len(pending) == 0 {
		sortRecords(out)
		return out, nil
	}

	var days map[types.DateKey][]*types.Record
	if rewrite {
		days, err = r.rebuildDates(ctx, pending)
	} else {
		days, err = r.scanDays(ctx, pending, "date")
		if err == nil && hidesRecords(days, status) {
			days, err = r.rebuildDates(ctx, pending)
		}
	}
	if err != nil {
		return nil, err
	}
	for _, recs := range days {
		out = append(out, recs...)
	}
	sortRecords(out)
	return out, nil
}

// hidesRecords reports whether a covered day that read as empty has records.
func hidesRecords(days map[types.DateKey][]*types.Record, status types.HistoryStatus) bool {
	for key, recs := range days {
		if len(recs) > 0 && status.Covers(key) {
			return true
		}
	}
	return false
}

// lookupDate resolves key through the date index, repairing ids that no
// longer belong there.
func (r *Repository) lookupDate(ctx context.Context, key types.DateKey) ([]*types.Record, lookup, error) {
	ids, ok, err := r.dates.IDs(key)
	if err != nil {
		r.log.Warn("index_read_failed", "date", key, "error", err)
		return nil, lookupMiss, nil
	}
	if !ok {
		return nil, lookupMiss, nil
	}
	if len(ids) == 0 {
		return nil, lookupEmpty, nil
	}
	home := func(rec *types.Record) (types.DateKey, bool) {
		return rec.DateKey(r.loc), true
	}
	recs, strays, err := r.resolve(ctx, ids, func(rec *types.Record) bool {
		return rec.DateKey(r.loc) == key
	})
	if err != nil {
		return nil, lookupMiss, err
	}
	if len(strays) > 0 {
		repair(ctx, r, r.dates, key, strays, home)
	}
	return recs, lookupHit, nil
}

// scanDays returns the records of each key from a single read: a time-range
// read when the primary store offers one, a full scan otherwise.
func (r *Repository) scanDays(ctx context.Context, keys []types.DateKey, reason string) (map[types.DateKey][]*types.Record, error) {
	recs, err := r.readDays(ctx, keys, reason)
	if err != nil {
		return nil, err
	}
	days := make(map[types.DateKey][]*types.Record, len(keys))
	for _, key := range keys {
		days[key] = nil
	}
	for _, rec := range recs {
		key := rec.DateKey(r.loc)
		if _, ok := days[key]; ok {
			days[key] = append(days[key], rec)
		}
	}
	return days, nil
}

// readDays returns at least the records dated on any of keys.
func (r *Repository) readDays(ctx context.Context, keys []types.DateKey, reason string) ([]*types.Record, error) {
	rr, ok := r.primary.(types.RangeReader)
	if !ok || len(keys) == 0 {
		return r.scan(ctx, reason)
	}
	first, last := slices.Min(keys), slices.Max(keys)
	start, err := first.Time(r.loc)
	if err != nil {
		return nil, err
	}
	end, err := last.Time(r.loc)
	if err != nil {
		return nil, err
	}
	recs, err := rr.GetBetween(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, storeErr("reading records by date", err)
	}
	r.metrics.rangeRead(r.collection, reason)
	return recs, nil
}

// rebuildDates rescans and overwrites the entries of those keys that are
// inside the coverage window. The entries are rewritten while writers are
// held off so none of their updates is lost.
func (r *Repository) rebuildDates(ctx context.Context, keys []types.DateKey) (map[types.DateKey][]*types.Record, error) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	days, err := r.scanDays(ctx, keys, "date_rebuild")
	if err != nil {
		return nil, err
	}
	meta, ok, err := r.meta.Load()
	if err != nil || !ok {
		return days, nil
	}
	status := meta.Status(r.collection)
	entries := make(map[types.DateKey][]string, len(days))
	for key, recs := range days {
		if status.Covers(key) {
			entries[key] = recordIDs(recs)
		}
	}
	if err := r.dates.ReplaceAll(entries); err != nil {
		r.log.Warn("index_rebuild_failed", "entries", len(entries), "error", err)
		return days, nil
	}
	r.metrics.repair(r.collection, "rebuilt", len(entries))
	r.log.Debug("date_entries_rebuilt", "entries", len(entries))
	return days, nil
}

// GetForGroup returns the records owned by groupID, ordered by At then ID.
// The group index is only consulted once history is completely indexed.
func (r *Repository) GetForGroup(ctx context.Context, groupID string) ([]*types.Record, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, types.ErrInvalidID
	}
	meta, err := r.state(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.Complete {
		r.metrics.fallback(r.collection, "incomplete")
		return r.scanGroup(ctx, groupID, "group")
	}

	ids, ok, err := r.groups.IDs(groupID)
	if err != nil {
		r.log.Warn("index_read_failed", "group", groupID, "error", err)
		ok = false
	}
	if ok && len(ids) > 0 {
		recs, strays, err := r.resolve(ctx, ids, func(rec *types.Record) bool {
			return rec.GroupID == groupID
		})
		if err != nil {
			return nil, err
		}
		if len(strays) > 0 {
			repair(ctx, r, r.groups, groupID, strays, func(rec *types.Record) (string, bool) {
				return rec.GroupID, rec.GroupID != ""
			})
		}
		sortRecords(recs)
		return recs, nil
	}

	if !ok {
		r.metrics.fallback(r.collection, "missing")
		return r.rebuildGroup(ctx, groupID)
	}
	recs, err := r.scanGroup(ctx, groupID, "group")
	if err != nil || len(recs) == 0 {
		return recs, err
	}
	return r.rebuildGroup(ctx, groupID)
}

func (r *Repository) scanGroup(ctx context.Context, groupID, reason string) ([]*types.Record, error) {
	all, err := r.scan(ctx, reason)
	if err != nil {
		return nil, err
	}
	recs := []*types.Record{}
	for _, rec := range all {
		if rec.GroupID == groupID {
			recs = append(recs, rec)
		}
	}
	sortRecords(recs)
	return recs, nil
}

func (r *Repository) rebuildGroup(ctx context.Context, groupID string) ([]*types.Record, error) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	recs, err := r.scanGroup(ctx, groupID, "group_rebuild")
	if err != nil {
		return nil, err
	}
	if err := r.groups.Replace(groupID, recordIDs(recs)); err != nil {
		r.log.Warn("index_rebuild_failed", "group", groupID, "error", err)
		return recs, nil
	}
	r.metrics.repair(r.collection, "rebuilt", 1)
	r.log.Debug("group_entry_rebuilt", "group", groupID, "records", len(recs))
	return recs, nil
}

// resolve fetches ids from the primary store. Ids whose record is gone or
// fails belongs are returned as strays instead.
func (r *Repository) resolve(ctx context.Context, ids []string, belongs func(*types.Record) bool) (recs []*types.Record, strays []string, err error) {
	recs = make([]*types.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.primary.Get(ctx, id)
		switch {
		case errors.Is(err, types.ErrNotFound):
			strays = append(strays, id)
		case err != nil:
			return nil, nil, storeErr("resolving "+id, err)
		case !belongs(rec):
			strays = append(strays, id)
		default:
			recs = append(recs, rec)
		}
	}
	return recs, strays, nil
}

// repair drops strays from bucket, moving each one whose record still exists
// to the bucket home reports. Each id is checked again with writers held off.
// Failures are logged; the next read retries.
func repair[K ~string](ctx context.Context, r *Repository, x *index.Index[K], bucket K, strays []string, home func(*types.Record) (K, bool)) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	for _, id := range strays {
		rec, err := r.primary.Get(ctx, id)
		var kind string
		switch {
		case errors.Is(err, types.ErrNotFound):
			kind, err = "stale", x.Remove(bucket, id)
		case err != nil:
		default:
			to, ok := home(rec)
			switch {
			case ok && to == bucket:
				continue
			case ok:
				kind, err = "misplaced", x.Move(bucket, to, id)
			default:
				kind, err = "misplaced", x.Remove(bucket, id)
			}
		}
		if err != nil {
			r.log.Warn("index_repair_failed", "bucket", string(bucket), "id", id, "error", err)
			continue
		}
		r.metrics.repair(r.collection, kind, 1)
		r.log.Debug("index_repaired", "bucket", string(bucket), "id", id, "kind", kind)
	}
}

func recordIDs(recs []*types.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids
}
