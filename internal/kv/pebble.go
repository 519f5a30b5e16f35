// Package kv implements the persistent key-value facility that holds the
// date index, group index, and backfill cursor. It is a thin layer over a
// Pebble database: every write is synced, multi-key writes go through one
// batch, and every failure is reported as types.ErrStoreUnavailable.
package kv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Compile-time interface check: Store must implement types.KV.
var _ types.KV = (*Store)(nil)

// Store is a Pebble-backed types.KV.
type Store struct {
	mu sync.RWMutex
	db *pebble.DB
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Store, error) {
	return open(dir, &pebble.Options{})
}

// OpenInMemory opens a Pebble database on an in-memory filesystem. Data does
// not survive Close.
func OpenInMemory() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening index store %q: %w: %w", dir, types.ErrStoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns a copy of the value stored under key, or types.ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, closedErr("get")
	}
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Put stores value under key.
func (s *Store) Put(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return closedErr("put")
	}
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key succeeds.
func (s *Store) Delete(key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return closedErr("delete")
	}
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// Apply commits all ops in one Pebble batch. Readers observe either none or
// all of them.
func (s *Store) Apply(ops ...types.KVOp) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return closedErr("apply")
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = batch.Delete(op.Key, nil)
		} else {
			err = batch.Set(op.Key, op.Value, nil)
		}
		if err != nil {
			return unavailable("apply", op.Key, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing batch of %d: %w: %w", len(ops), types.ErrStoreUnavailable, err)
	}
	return nil
}

// DeletePrefix removes every key that starts with prefix.
func (s *Store) DeletePrefix(prefix []byte) error {
	if len(prefix) == 0 {
		return fmt.Errorf("delete prefix: %w: empty prefix", types.ErrInvalidData)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return closedErr("delete prefix")
	}
	end := prefixEnd(prefix)
	if end == nil {
		return fmt.Errorf("delete prefix: %w: prefix has no upper bound", types.ErrInvalidData)
	}
	if err := s.db.DeleteRange(prefix, end, pebble.Sync); err != nil {
		return unavailable("delete prefix", prefix, err)
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if no such key exists (prefix is all 0xff).
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func unavailable(op string, key []byte, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, types.ErrStoreUnavailable, err)
}

func closedErr(op string) error {
	return fmt.Errorf("%s: %w: %w", op, types.ErrStoreUnavailable, types.ErrStoreClosed)
}
