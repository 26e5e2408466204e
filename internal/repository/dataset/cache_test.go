package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	loads int
}

func (s *countingStore) Load(ctx context.Context, name string) (Table, error) {
	s.loads++
	return s.Store.Load(ctx, name)
}

func TestCachedStore_ServesFromCacheUntilSave(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: NewMemoryStore(Table{Name: "inv", Header: []string{"h"}, Rows: [][]string{{"1"}}})}
	store := NewCachedStore(backend, NewMemoryCache(), time.Minute, nil)

	first, err := store.Load(ctx, "inv")
	require.NoError(t, err)
	_, err = store.Load(ctx, "inv")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.loads)

	first.Rows = [][]string{{"2"}}
	require.NoError(t, store.Save(ctx, first, "update"))

	after, err := store.Load(ctx, "inv")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.loads)
	assert.Equal(t, [][]string{{"2"}}, after.Rows)
}

func TestCachedStore_InvalidatesOnConflict(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: NewMemoryStore(Table{Name: "inv", Rows: [][]string{{"1"}}})}
	store := NewCachedStore(backend, NewMemoryCache(), time.Minute, nil)

	stale, err := store.Load(ctx, "inv")
	require.NoError(t, err)

	fresh, err := backend.Store.Load(ctx, "inv")
	require.NoError(t, err)
	require.NoError(t, backend.Store.Save(ctx, fresh, "elsewhere"))

	err = store.Save(ctx, stale, "mine")
	require.ErrorIs(t, err, ErrVersionConflict)

	_, err = store.Load(ctx, "inv")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.loads)
}

func TestCachedStore_ZeroTTLDisablesCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: NewMemoryStore()}
	store := NewCachedStore(backend, NewMemoryCache(), 0, nil)

	_, _ = store.Load(ctx, "inv")
	_, _ = store.Load(ctx, "inv")
	assert.Equal(t, 2, backend.loads)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "inv", Table{Name: "inv"}, time.Minute))
	_, ok, err := cache.Get(ctx, "inv")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(ctx, "inv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_VersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	missing, err := store.Load(ctx, "orders.csv")
	require.NoError(t, err)
	assert.True(t, missing.Empty())

	require.NoError(t, store.Save(ctx, Table{Name: "orders.csv", Rows: [][]string{{"a"}}}, "create"))

	loaded, err := store.Load(ctx, "orders.csv")
	require.NoError(t, err)
	require.NotEmpty(t, loaded.Version)

	loaded.Rows[0][0] = "mutated"
	again, err := store.Load(ctx, "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Rows[0][0], "loads must be copies")

	require.NoError(t, store.Save(ctx, loaded, "update"))
	assert.ErrorIs(t, store.Save(ctx, again, "stale"), ErrVersionConflict)
}
