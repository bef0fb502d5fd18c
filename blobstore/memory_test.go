package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("in memory")
	require.NoError(t, store.Put(ctx, "a/1", data))
	data[0] = 'X' // stored copy is unaffected

	w, err := store.Create(ctx, "a/2")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.Error(t, err)

	require.NoError(t, store.Put(ctx, "b/1", nil))

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, names)

	got, err := Get(ctx, store, "a/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("in memory"), got)

	blob, err := store.Open(ctx, "a/2")
	require.NoError(t, err)
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 2, 100)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "reamed", string(rest))

	_, err = blob.ReadRange(ctx, 8, 1)
	assert.ErrorIs(t, err, io.EOF)

	section := io.NewSectionReader(ReaderAt(ctx, blob), 0, blob.Size())
	all, err := io.ReadAll(section)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(all))

	require.NoError(t, store.Delete(ctx, "a/1"))
	_, err = store.Open(ctx, "a/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutIfNotExists(t *testing.T) {
	var store ConditionalPutter = NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutIfNotExists(ctx, "once", []byte("1")))
	assert.ErrorIs(t, store.PutIfNotExists(ctx, "once", []byte("2")), ErrConflict)

	got, err := Get(ctx, store.(BlobStore), "once")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}
