package vecstore

import (
	"context"
	"os"
	"testing"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_RequiresEmbedder(t *testing.T) {
	_, err := NewCache(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestCache_Get_ReturnsSameHandle(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &mock.Embedder{})
	require.NoError(t, err)
	defer cache.Close()

	first, err := cache.Get("module_1_vector_store")
	require.NoError(t, err)

	second, err := cache.Get("module_1_vector_store")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &mock.Embedder{}, WithCacheSize(2))
	require.NoError(t, err)
	defer cache.Close()

	a, err := cache.Get("module_a_vector_store")
	require.NoError(t, err)
	_, err = cache.Get("module_b_vector_store")
	require.NoError(t, err)

	// Touch a so b becomes the eviction candidate.
	_, err = cache.Get("module_a_vector_store")
	require.NoError(t, err)

	_, err = cache.Get("module_c_vector_store")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	// a survived the eviction and its handle still works.
	again, err := cache.Get("module_a_vector_store")
	require.NoError(t, err)
	assert.Same(t, a, again)

	// b was closed and dropped; getting it again opens a fresh handle.
	b, err := cache.Get("module_b_vector_store")
	require.NoError(t, err)
	_, err = b.Count(context.Background())
	assert.NoError(t, err)
}

func TestCache_Reset_RemovesFromDisk(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir, &mock.Embedder{})
	require.NoError(t, err)
	defer cache.Close()

	handle, err := cache.Get("module_7_vector_store")
	require.NoError(t, err)
	require.NoError(t, handle.Add(context.Background(), []Document{{Content: "row"}}))

	require.NoError(t, cache.Reset("module_7_vector_store"))
	assert.Equal(t, 0, cache.Len())

	_, err = os.Stat(CollectionPath("module_7_vector_store", dir))
	assert.True(t, os.IsNotExist(err))
}

func TestCache_Drop_UnknownCollection(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &mock.Embedder{})
	require.NoError(t, err)
	defer cache.Close()

	cache.Drop("module_never_opened")
	assert.Equal(t, 0, cache.Len())
}
