// Package repository is the per-collection facade over a primary store and
// its date and group indexes. Callers never see the indexes: reads fall
// back to a full scan whenever an index entry is missing, unreadable, or
// outside the coverage window, and repair the entry when it is inside it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/daybook/internal/backfill"
	"github.com/mesh-intelligence/daybook/internal/index"
	"github.com/mesh-intelligence/daybook/internal/summary"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the source of "now". Tests pin it to a fixed day.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLocation sets the time zone in which record dates become date keys.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithBootstrapDays sets how many days before today the first bootstrap
// indexes.
func WithBootstrapDays(days int) Option {
	return func(r *Repository) {
		r.bootstrapDays = days
	}
}

// WithLogger sets the logger. The collection name is attached to every line.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records repository activity in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// Repository serves one collection.
type Repository struct {
	collection string
	primary    types.PrimaryStore
	kv         types.KV
	dates      *index.Index[types.DateKey]
	groups     *index.Index[string]
	meta       *backfill.MetaStore
	agg        *summary.Aggregator

	now           func() time.Time
	loc           *time.Location
	zone          string
	bootstrapDays int
	log           *slog.Logger
	metrics       *Metrics

	// rebuildMu lets writes run together while keeping them out of any
	// scan-then-replace sequence. Writes hold it shared; bootstrap,
	// catch-up, backfill chunks, entry rebuilds, and repairs hold it
	// exclusively.
	rebuildMu sync.RWMutex
}

// New returns the facade for collection.
func New(collection string, primary types.PrimaryStore, kv types.KV, opts ...Option) (*Repository, error) {
	if !types.ValidCollection(collection) {
		return nil, fmt.Errorf("%w: %q", types.ErrCollectionInvalid, collection)
	}
	if primary == nil || kv == nil {
		return nil, errors.New("repository needs a primary store and a KV store")
	}
	r := &Repository{
		collection:    collection,
		primary:       primary,
		kv:            kv,
		dates:         index.NewDateIndex(kv, collection),
		groups:        index.NewGroupIndex(kv, collection),
		meta:          backfill.NewMetaStore(kv, collection),
		now:           time.Now,
		loc:           time.Local,
		bootstrapDays: types.DefaultBootstrapDays,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bootstrapDays < 0 || r.bootstrapDays > types.MaxWindowDays {
		return nil, fmt.Errorf("%w: %d", types.ErrBootstrapDaysInvalid, r.bootstrapDays)
	}
	r.zone = zoneID(r.loc)
	r.log = r.log.With("collection", collection)
	r.agg = summary.NewAggregator(r, r.loc)
	return r, nil
}

// Collection returns the collection name.
func (r *Repository) Collection() string {
	return r.collection
}

// Location returns the time zone used for date keys.
func (r *Repository) Location() *time.Location {
	return r.loc
}

// Get returns the record with id straight from the primary store.
func (r *Repository) Get(ctx context.Context, id string) (*types.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.ErrInvalidID
	}
	rec, err := r.primary.Get(ctx, id)
	if err != nil {
		return nil, storeErr("getting record", err)
	}
	return rec, nil
}

// zoneID names loc in the backfill meta. The local zone is named by its
// winter and summer offsets so a change of host zone is noticed.
func zoneID(loc *time.Location) string {
	if loc != time.Local {
		return loc.String()
	}
	var b strings.Builder
	b.WriteString("Local")
	for _, m := range []time.Month{time.January, time.July} {
		name, offset := time.Date(2025, m, 1, 12, 0, 0, 0, loc).Zone()
		fmt.Fprintf(&b, "|%s%+d", name, offset)
	}
	return b.String()
}

func (r *Repository) today() types.DateKey {
	return types.DateKeyOf(r.now(), r.loc)
}

// scan reads every record of the collection.
func (r *Repository) scan(ctx context.Context, reason string) ([]*types.Record, error) {
	recs, err := r.primary.GetAll(ctx)
	if err != nil {
		return nil, storeErr("scanning records", err)
	}
	r.metrics.scan(r.collection, reason)
	return recs, nil
}

// storeErr wraps err for op. Failures that are not already classified become
// ErrStoreUnavailable so callers only need errors.Is on the sentinels.
func storeErr(op string, err error) error {
	for _, known := range []error{
		types.ErrStoreUnavailable,
		types.ErrNotFound,
		types.ErrAlreadyExists,
		types.ErrInvalidID,
		types.ErrInvalidData,
		types.ErrMissingDate,
		types.ErrDateRange,
	} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, err)
}

// sortRecords orders records by date, then id.
func sortRecords(recs []*types.Record) {
	slices.SortFunc(recs, func(a, b *types.Record) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
