package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetPutDelete(t *testing.T) {
	s := openMem(t)

	_, err := s.Get([]byte("missing"))
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	got, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, s.Delete([]byte("a")))
	_, err = s.Get([]byte("a"))
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Deleting an absent key is a no-op.
	assert.NoError(t, s.Delete([]byte("a")))
}

func TestStore_Apply(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Put([]byte("old"), []byte("x")))

	err := s.Apply(
		types.KVOp{Key: []byte("old"), Value: nil},
		types.KVOp{Key: []byte("new"), Value: []byte("y")},
	)
	require.NoError(t, err)

	_, err = s.Get([]byte("old"))
	assert.ErrorIs(t, err, types.ErrNotFound)
	got, err := s.Get([]byte("new"))
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), got)

	assert.NoError(t, s.Apply())
}

func TestStore_DeletePrefix(t *testing.T) {
	s := openMem(t)
	for _, k := range []string{"tasks/d/20260101", "tasks/d/20260102", "tasks/meta", "habits/meta"} {
		require.NoError(t, s.Put([]byte(k), []byte("v")))
	}

	require.NoError(t, s.DeletePrefix([]byte("tasks/")))

	for _, k := range []string{"tasks/d/20260101", "tasks/d/20260102", "tasks/meta"} {
		_, err := s.Get([]byte(k))
		assert.ErrorIs(t, err, types.ErrNotFound, k)
	}
	got, err := s.Get([]byte("habits/meta"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.ErrorIs(t, s.DeletePrefix(nil), types.ErrInvalidData)
}

func TestStore_ClosedReturnsUnavailable(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close must be idempotent")

	_, err = s.Get([]byte("a"))
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	assert.ErrorIs(t, s.Put([]byte("a"), []byte("b")), types.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Delete([]byte("a")), types.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Apply(types.KVOp{Key: []byte("a")}), types.ErrStoreUnavailable)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("tasks/meta"), []byte(`{"paused":true}`)))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get([]byte("tasks/meta"))
	require.NoError(t, err)
	assert.Equal(t, `{"paused":true}`, string(got))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("tasks0"), prefixEnd([]byte("tasks/")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}
