package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// Key prefixes within a collection.
const (
	datePrefix  = "d/"
	groupPrefix = "g/"
)

// Index maps a bucket (a date key or a group id) to a set of record ids.
type Index[K ~string] struct {
	kv     types.KV
	prefix string
	locks  keyedMutex
}

// NewDateIndex returns the date index for collection.
func NewDateIndex(kv types.KV, collection string) *Index[types.DateKey] {
	return &Index[types.DateKey]{kv: kv, prefix: collection + "/" + datePrefix}
}

// NewGroupIndex returns the group index for collection.
func NewGroupIndex(kv types.KV, collection string) *Index[string] {
	return &Index[string]{kv: kv, prefix: collection + "/" + groupPrefix}
}

// CollectionPrefix returns the prefix shared by every key of collection.
func CollectionPrefix(collection string) []byte {
	return []byte(collection + "/")
}

func (x *Index[K]) key(bucket K) []byte {
	return []byte(x.prefix + string(bucket))
}

// entryState describes what a read found at a key.
type entryState int

const (
	entryAbsent entryState = iota
	entryPresent
	entryUnreadable
)

// IDs returns the ids in bucket. ok is false when the entry is absent or
// cannot be decoded; err is set only for store failures.
func (x *Index[K]) IDs(bucket K) (ids []string, ok bool, err error) {
	ids, state, err := x.read(x.key(bucket))
	return ids, state == entryPresent, err
}

// Add inserts id into an existing entry. It is a no-op when id is already
// present or the entry is absent. An unreadable entry is dropped.
func (x *Index[K]) Add(bucket K, id string) error {
	key := x.key(bucket)
	unlock := x.locks.lock(string(key))
	defer unlock()

	op, changed, err := x.mutate(key, id, true)
	if err != nil || !changed {
		return err
	}
	return x.kv.Apply(op)
}

// Remove deletes id from an existing entry. It is a no-op when id is
// already absent. An unreadable entry is dropped.
func (x *Index[K]) Remove(bucket K, id string) error {
	key := x.key(bucket)
	unlock := x.locks.lock(string(key))
	defer unlock()

	op, changed, err := x.mutate(key, id, false)
	if err != nil || !changed {
		return err
	}
	return x.kv.Apply(op)
}

// Move removes id from bucket from and adds it to bucket to in one atomic
// write. Moving within the same bucket is a no-op.
func (x *Index[K]) Move(from, to K, id string) error {
	if from == to {
		return nil
	}
	fromKey, toKey := x.key(from), x.key(to)
	unlock := x.locks.lock(string(fromKey), string(toKey))
	defer unlock()

	var ops []types.KVOp
	op, changed, err := x.mutate(fromKey, id, false)
	if err != nil {
		return err
	}
	if changed {
		ops = append(ops, op)
	}
	op, changed, err = x.mutate(toKey, id, true)
	if err != nil {
		return err
	}
	if changed {
		ops = append(ops, op)
	}
	return x.kv.Apply(ops...)
}

// Replace overwrites bucket with exactly ids. An empty ids writes an empty
// entry, which reads as "no records".
func (x *Index[K]) Replace(bucket K, ids []string) error {
	key := x.key(bucket)
	unlock := x.locks.lock(string(key))
	defer unlock()

	val, err := encode(ids)
	if err != nil {
		return err
	}
	return x.kv.Apply(types.KVOp{Key: key, Value: val})
}

// ReplaceAll overwrites several buckets in one atomic write.
func (x *Index[K]) ReplaceAll(entries map[K][]string) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]string, 0, len(entries))
	ops := make([]types.KVOp, 0, len(entries))
	for bucket, ids := range entries {
		key := x.key(bucket)
		val, err := encode(ids)
		if err != nil {
			return err
		}
		keys = append(keys, string(key))
		ops = append(ops, types.KVOp{Key: key, Value: val})
	}
	unlock := x.locks.lock(keys...)
	defer unlock()

	return x.kv.Apply(ops...)
}

// Clear deletes the entry for bucket, leaving it absent.
func (x *Index[K]) Clear(bucket K) error {
	key := x.key(bucket)
	unlock := x.locks.lock(string(key))
	defer unlock()

	return x.kv.Delete(key)
}

// mutate computes the write that adds or removes id from the entry at key.
// The caller must hold the lock for key.
func (x *Index[K]) mutate(key []byte, id string, add bool) (types.KVOp, bool, error) {
	ids, state, err := x.read(key)
	if err != nil {
		return types.KVOp{}, false, err
	}
	switch state {
	case entryAbsent:
		// Stays absent until a rebuild.
		return types.KVOp{}, false, nil
	case entryUnreadable:
		// Drop it so the next read rebuilds from the store.
		return types.KVOp{Key: key, Value: nil}, true, nil
	}

	pos, found := slices.BinarySearch(ids, id)
	switch {
	case add && found, !add && !found:
		return types.KVOp{}, false, nil
	case add:
		ids = slices.Insert(ids, pos, id)
	default:
		ids = slices.Delete(ids, pos, pos+1)
	}
	val, err := encode(ids)
	if err != nil {
		return types.KVOp{}, false, err
	}
	return types.KVOp{Key: key, Value: val}, true, nil
}

func (x *Index[K]) read(key []byte) ([]string, entryState, error) {
	raw, err := x.kv.Get(key)
	if errors.Is(err, types.ErrNotFound) {
		return nil, entryAbsent, nil
	}
	if err != nil {
		return nil, entryAbsent, err
	}
	ids, ok := decode(raw)
	if !ok {
		return nil, entryUnreadable, nil
	}
	return ids, entryPresent, nil
}

// encode returns ids as a sorted, duplicate-free JSON array.
func encode(ids []string) ([]byte, error) {
	set := slices.Clone(ids)
	slices.Sort(set)
	set = slices.Compact(set)
	if set == nil {
		set = []string{}
	}
	val, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encoding id set: %w", err)
	}
	return val, nil
}

// decode parses an id array. It normalizes order and duplicates so a
// hand-edited entry still behaves as a set.
func decode(raw []byte) ([]string, bool) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil || ids == nil && string(raw) != "[]" {
		return nil, false
	}
	for _, id := range ids {
		if id == "" {
			return nil, false
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), true
}
