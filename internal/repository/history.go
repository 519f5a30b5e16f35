package repository

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/daybook/internal/backfill"
	"github.com/mesh-intelligence/daybook/internal/index"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// state returns the coverage cursor, bootstrapping the collection on first
// use and extending the window forward once the clock passes it. Entries
// keyed in another time zone are dropped and the collection bootstraps again.
func (r *Repository) state(ctx context.Context) (backfill.Meta, error) {
	meta, ok, err := r.meta.Load()
	if err != nil {
		return backfill.Meta{}, storeErr("loading history", err)
	}
	today := r.today()
	if ok && meta.Zone == r.zone && !today.After(meta.IndexedThrough) {
		return meta, nil
	}

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	meta, ok, err = r.meta.Load()
	if err != nil {
		return backfill.Meta{}, storeErr("loading history", err)
	}
	if ok && meta.Zone != r.zone {
		if err := r.kv.DeletePrefix(index.CollectionPrefix(r.collection)); err != nil {
			return backfill.Meta{}, storeErr("dropping index of another zone", err)
		}
		r.metrics.reset(r.collection)
		r.log.Warn("history_zone_changed", "was", meta.Zone, "now", r.zone)
		ok = false
	}
	switch {
	case !ok:
		return r.bootstrap(ctx, today)
	case today.After(meta.IndexedThrough):
		return r.catchUp(ctx, meta, today)
	}
	return meta, nil
}

// bootstrap indexes [today-bootstrapDays, today] from one scan. The caller
// holds rebuildMu.
func (r *Repository) bootstrap(ctx context.Context, today types.DateKey) (backfill.Meta, error) {
	recs, err := r.scan(ctx, "bootstrap")
	if err != nil {
		return backfill.Meta{}, err
	}
	meta := backfill.Meta{
		IndexedFrom:    today.AddDays(-r.bootstrapDays),
		IndexedThrough: today,
	}
	if err := r.dates.ReplaceAll(r.dateEntries(recs, meta.IndexedFrom, today)); err != nil {
		return backfill.Meta{}, storeErr("bootstrapping index", err)
	}
	if !r.hasOlder(recs, meta.IndexedFrom) {
		if err := r.completeGroups(recs); err != nil {
			return backfill.Meta{}, err
		}
		meta.Complete = true
	}
	if err := r.save(&meta); err != nil {
		return backfill.Meta{}, err
	}
	r.metrics.indexed(r.collection, meta)
	r.log.Info("history_bootstrapped",
		"indexed_from", meta.IndexedFrom, "indexed_through", meta.IndexedThrough,
		"records", len(recs), "complete", meta.Complete)
	return meta, nil
}

// catchUp indexes the days between the end of the window and today. The
// caller holds rebuildMu.
func (r *Repository) catchUp(ctx context.Context, meta backfill.Meta, today types.DateKey) (backfill.Meta, error) {
	recs, err := r.scan(ctx, "catch_up")
	if err != nil {
		return backfill.Meta{}, err
	}
	from := meta.IndexedThrough.AddDays(1)
	if err := r.dates.ReplaceAll(r.dateEntries(recs, from, today)); err != nil {
		return backfill.Meta{}, storeErr("extending index", err)
	}
	meta.IndexedThrough = today
	if err := r.save(&meta); err != nil {
		return backfill.Meta{}, err
	}
	r.metrics.indexed(r.collection, meta)
	r.log.Info("history_extended", "from", from, "indexed_through", today)
	return meta, nil
}

// BackfillNextChunk indexes up to chunkDays days older than the window. It
// reports whether it did any work; false means the collection is paused or
// history is complete. A chunk is written in one batch, so a crash leaves
// the previous cursor in place.
func (r *Repository) BackfillNextChunk(ctx context.Context, chunkDays int) (bool, error) {
	if chunkDays <= 0 || chunkDays > types.MaxWindowDays {
		return false, fmt.Errorf("%w: %d", types.ErrInvalidChunk, chunkDays)
	}
	meta, err := r.state(ctx)
	if err != nil {
		return false, err
	}
	if meta.Paused || meta.Complete {
		r.metrics.chunk(r.collection, chunkSkipped(meta))
		return false, nil
	}

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	meta, ok, err := r.meta.Load()
	if err != nil {
		return false, storeErr("loading history", err)
	}
	if !ok || meta.Paused || meta.Complete {
		r.metrics.chunk(r.collection, chunkSkipped(meta))
		return false, nil
	}

	recs, err := r.scan(ctx, "backfill")
	if err != nil {
		return false, err
	}
	if meta.IndexedFrom == types.MinDateKey || !r.hasOlder(recs, meta.IndexedFrom) {
		if err := r.completeGroups(recs); err != nil {
			return false, err
		}
		meta.Complete = true
		if err := r.save(&meta); err != nil {
			return false, err
		}
		r.metrics.chunk(r.collection, "complete")
		r.log.Info("backfill_complete", "indexed_from", meta.IndexedFrom)
		return false, nil
	}

	from := meta.IndexedFrom.AddDays(-chunkDays)
	if err := r.dates.ReplaceAll(r.dateEntries(recs, from, meta.IndexedFrom.AddDays(-1))); err != nil {
		return false, storeErr("backfilling index", err)
	}
	meta.IndexedFrom = from
	if from == types.MinDateKey || !r.hasOlder(recs, from) {
		if err := r.completeGroups(recs); err != nil {
			return false, err
		}
		meta.Complete = true
	}
	if err := r.save(&meta); err != nil {
		return false, err
	}
	r.metrics.chunk(r.collection, "indexed")
	r.metrics.indexed(r.collection, meta)
	r.log.Info("backfill_chunk",
		"indexed_from", meta.IndexedFrom, "days", chunkDays, "complete", meta.Complete)
	return true, nil
}

func chunkSkipped(meta backfill.Meta) string {
	if meta.Complete {
		return "complete"
	}
	return "paused"
}

// HistoryStatus reports the coverage window without bootstrapping. A window
// indexed in another time zone reports as not bootstrapped.
func (r *Repository) HistoryStatus(ctx context.Context) (types.HistoryStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.HistoryStatus{}, storeErr("loading history", err)
	}
	meta, ok, err := r.meta.Load()
	if err != nil {
		return types.HistoryStatus{}, storeErr("loading history", err)
	}
	if !ok || meta.Zone != r.zone {
		return types.HistoryStatus{Collection: r.collection}, nil
	}
	return meta.Status(r.collection), nil
}

// SetBackfillPaused pauses or resumes backfill. A chunk already running
// finishes; later chunks see the flag.
func (r *Repository) SetBackfillPaused(ctx context.Context, paused bool) error {
	if _, err := r.state(ctx); err != nil {
		return err
	}

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	meta, ok, err := r.meta.Load()
	if err != nil {
		return storeErr("loading history", err)
	}
	if !ok {
		return fmt.Errorf("setting backfill pause: %w: history meta vanished", types.ErrStoreUnavailable)
	}
	if meta.Paused == paused {
		return nil
	}
	meta.Paused = paused
	if err := r.save(&meta); err != nil {
		return err
	}
	r.log.Info("backfill_paused", "paused", paused)
	return nil
}

// Reset drops every index entry and the cursor of the collection. The next
// read or write bootstraps again.
func (r *Repository) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return storeErr("resetting index", err)
	}

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	if err := r.kv.DeletePrefix(index.CollectionPrefix(r.collection)); err != nil {
		return storeErr("resetting index", err)
	}
	r.metrics.reset(r.collection)
	r.log.Info("history_reset")
	return nil
}

// dateEntries returns an entry for every key in [from, to], empty where no
// record falls. Records outside the range are ignored.
func (r *Repository) dateEntries(recs []*types.Record, from, to types.DateKey) map[types.DateKey][]string {
	entries := make(map[types.DateKey][]string)
	if from.After(to) {
		return entries
	}
	for _, key := range types.DateKeysBetween(from, to) {
		entries[key] = []string{}
	}
	for _, rec := range recs {
		key := rec.DateKey(r.loc)
		if ids, ok := entries[key]; ok {
			entries[key] = append(ids, rec.ID)
		}
	}
	return entries
}

// hasOlder reports whether any record is dated before key.
func (r *Repository) hasOlder(recs []*types.Record, key types.DateKey) bool {
	for _, rec := range recs {
		if rec.DateKey(r.loc).Before(key) {
			return true
		}
	}
	return false
}

// completeGroups writes the group index from a full scan. It runs once, when
// the whole history becomes indexed.
func (r *Repository) completeGroups(recs []*types.Record) error {
	entries := make(map[string][]string)
	for _, rec := range recs {
		if rec.GroupID != "" {
			entries[rec.GroupID] = append(entries[rec.GroupID], rec.ID)
		}
	}
	if err := r.groups.ReplaceAll(entries); err != nil {
		return storeErr("indexing groups", err)
	}
	r.log.Debug("group_index_built", "groups", len(entries))
	return nil
}

func (r *Repository) save(meta *backfill.Meta) error {
	meta.Zone = r.zone
	meta.UpdatedAt = r.now().UTC()
	if err := r.meta.Save(*meta); err != nil {
		return storeErr("saving history", err)
	}
	return nil
}
