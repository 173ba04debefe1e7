package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

type exampleStruct struct {
	ID   int
	Name string
}

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, exampleStruct]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	example := exampleStruct{
		Name: "soj-count",
	}
	cache.Set(context.Background(), "sorc-east/stash", example, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "sorc-east/stash")
	require.True(t, ok)
	require.Equal(t, example, got)
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "sorc-east/last-run", "chaos", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "sorc-east/last-run")
	require.True(t, ok)
	require.Equal(t, "chaos", got)
}

func TestInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithExistingInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("key", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "key")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "key", "value", 50*time.Millisecond)

	// Refresh with a long ttl, then wait past the original expiry
	got, ok := cache.GetWithRefresh(context.Background(), "key", time.Minute)
	require.True(t, ok)
	require.Equal(t, "value", got)

	time.Sleep(80 * time.Millisecond)

	got, ok = cache.Get(context.Background(), "key")
	require.True(t, ok, "refreshed entry should outlive the original ttl")
	require.Equal(t, "value", got)
}

func TestInMemoryCacheManager_GetWithRefresh_Missing(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.GetWithRefresh(context.Background(), "missing", time.Minute)
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "a", "1", DefaultExpiration)
	cache.Set(context.Background(), "b", "2", DefaultExpiration)

	require.NoError(t, cache.Delete(context.Background(), "a", "b"))

	_, ok := cache.Get(context.Background(), "a")
	require.False(t, ok)
	_, ok = cache.Get(context.Background(), "b")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Delete_NoKeys(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	require.NoError(t, cache.Delete(context.Background()))
}

func TestInMemoryCacheManager_DeletePrefix(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "sorc-east/a", "1", DefaultExpiration)
	cache.Set(context.Background(), "sorc-east/b", "2", DefaultExpiration)
	cache.Set(context.Background(), "pala-west/a", "3", DefaultExpiration)

	require.NoError(t, cache.DeletePrefix(context.Background(), "sorc-east/"))

	_, ok := cache.Get(context.Background(), "sorc-east/a")
	require.False(t, ok)
	_, ok = cache.Get(context.Background(), "sorc-east/b")
	require.False(t, ok)

	// Other profiles' keys are untouched
	got, ok := cache.Get(context.Background(), "pala-west/a")
	require.True(t, ok)
	require.Equal(t, "3", got)
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "a", "1", DefaultExpiration)

	require.NoError(t, cache.Flush(context.Background()))

	_, ok := cache.Get(context.Background(), "a")
	require.False(t, ok)
}

func TestInMemoryCacheManager_TTLExpiry(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("runtime-kv", DefaultExpiration, time.Minute)
	cache.Set(context.Background(), "short", "lived", 30*time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "short")
	require.False(t, ok, "entry should expire after its ttl")
}
