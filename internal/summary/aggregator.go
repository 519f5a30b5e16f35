// Package summary folds records into per-day or per-range counts.
package summary

import (
	"context"
	"time"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Fold counts records by category and status. Records whose date key in loc
// falls outside [from, to] are ignored, so Fold over a raw scan and Fold
// over an index lookup agree.
func Fold(from, to types.DateKey, loc *time.Location, records []*types.Record) types.Summary {
	s := types.Summary{
		From:       from,
		To:         to,
		ByCategory: make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := rec.DateKey(loc)
		if key.Before(from) || key.After(to) {
			continue
		}
		s.Total++
		s.ByCategory[bucket(rec.Category, types.UncategorizedBucket)]++
		s.ByStatus[bucket(rec.Status, types.NoStatusBucket)]++
	}
	return s
}

func bucket(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Source resolves the records of a date range.
type Source interface {
	GetInRange(ctx context.Context, from, to types.DateKey) ([]*types.Record, error)
}

// Aggregator computes summaries from a Source. It holds no cached values.
type Aggregator struct {
	src Source
	loc *time.Location
}

// NewAggregator returns an Aggregator reading from src, bucketing days in loc.
func NewAggregator(src Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{src: src, loc: loc}
}

// ForDate summarizes one day.
func (a *Aggregator) ForDate(ctx context.Context, key types.DateKey) (types.Summary, error) {
	return a.ForRange(ctx, key, key)
}

// ForRange summarizes [from, to].
func (a *Aggregator) ForRange(ctx context.Context, from, to types.DateKey) (types.Summary, error) {
	records, err := a.src.GetInRange(ctx, from, to)
	if err != nil {
		return types.Summary{}, err
	}
	return Fold(from, to, a.loc, records), nil
}
