// Package backfill persists the history-coverage cursor of a collection and
// drives the chunked backfill that extends it into older history.
package backfill

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Meta is the persisted coverage cursor. Every date key in
// [IndexedFrom, IndexedThrough] is fully indexed, with records keyed in the
// time zone named by Zone.
type Meta struct {
	IndexedFrom    types.DateKey `json:"indexed_from"`
	IndexedThrough types.DateKey `json:"indexed_through"`
	Zone           string        `json:"zone"`
	Paused         bool          `json:"paused"`
	Complete       bool          `json:"complete"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Status projects m for collection.
func (m Meta) Status(collection string) types.HistoryStatus {
	return types.HistoryStatus{
		Collection:     collection,
		Bootstrapped:   true,
		IndexedFrom:    m.IndexedFrom,
		IndexedThrough: m.IndexedThrough,
		Paused:         m.Paused,
		Complete:       m.Complete,
		UpdatedAt:      m.UpdatedAt,
	}
}

// valid reports whether the cursor describes a usable window.
func (m Meta) valid() bool {
	return m.IndexedFrom.Valid() && m.IndexedThrough.Valid() && !m.IndexedFrom.After(m.IndexedThrough)
}

// MetaStore loads and saves one collection's Meta.
type MetaStore struct {
	kv  types.KV
	key []byte
}

// NewMetaStore returns the meta store for collection.
func NewMetaStore(kv types.KV, collection string) *MetaStore {
	return &MetaStore{kv: kv, key: []byte(collection + "/meta")}
}

// Load returns the stored Meta. ok is false when none exists or the stored
// value is unusable; the caller bootstraps in that case.
func (s *MetaStore) Load() (meta Meta, ok bool, err error) {
	raw, err := s.kv.Get(s.key)
	if errors.Is(err, types.ErrNotFound) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("loading backfill meta: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil || !meta.valid() {
		return Meta{}, false, nil
	}
	return meta, true, nil
}

// Save persists meta.
func (s *MetaStore) Save(meta Meta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding backfill meta: %w", err)
	}
	if err := s.kv.Put(s.key, raw); err != nil {
		return fmt.Errorf("saving backfill meta: %w", err)
	}
	return nil
}
