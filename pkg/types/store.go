package types

import (
	"context"
	"errors"
	"time"
)

// PrimaryStore is the source of truth for one collection's records. Every
// method is atomic and durable on return.
type PrimaryStore interface {
	// GetAll returns every record in the collection, in no particular order.
	GetAll(ctx context.Context) ([]*Record, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Put creates or replaces the record stored under rec.ID.
	Put(ctx context.Context, rec *Record) error

	// Delete removes the record with the given id. Deleting an absent id is
	// not an error.
	Delete(ctx context.Context, id string) error
}

// RangeReader is implemented by primary stores that can list records by
// time without reading the whole collection.
type RangeReader interface {
	// GetBetween returns the records with start <= At < end, in no
	// particular order.
	GetBetween(ctx context.Context, start, end time.Time) ([]*Record, error)
}

// KV is the persistent key-value facility that holds secondary structures.
// No transactional guarantee spans keys except through Apply.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Apply writes all ops atomically.
	Apply(ops ...KVOp) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(prefix []byte) error
}

// KVOp is one write in an atomic KV.Apply. A nil Value deletes Key.
type KVOp struct {
	Key   []byte
	Value []byte
}

// Storage errors.
var (
	// ErrStoreUnavailable wraps any failure to read or write a backing store.
	// It is the only store-level failure the repository surfaces.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrStoreClosed      = errors.New("store is closed")
	ErrAlreadyOpen      = errors.New("store is already open")
)

// Query errors.
var (
	ErrInvalidRange = errors.New("range start is after range end")
	ErrInvalidChunk = errors.New("chunk days must be between 1 and 36600")
)
