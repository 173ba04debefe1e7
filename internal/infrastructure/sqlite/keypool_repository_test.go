package sqlite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/warden/internal/fleet"
)

func TestKeyPoolRepository_CreateAndGet(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))

	pool, err := repo.GetByName("pool-a")
	require.NoError(t, err, "GetByName should succeed")
	require.Equal(t, "pool-a", pool.Name)
	require.Empty(t, pool.Keys, "New pool should have no keys")
}

func TestKeyPoolRepository_Create_DuplicateName(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	err := repo.Create("pool-a")
	require.Error(t, err, "Create should fail for duplicate pool name")
}

func TestKeyPoolRepository_GetByName_NotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	_, err := repo.GetByName("ghost")
	require.Error(t, err)

	var notFound *fleet.KeyPoolNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyPoolNotFoundError")
	require.Equal(t, "ghost", notFound.Name)
}

func TestKeyPoolRepository_List_OrderedByName(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("zulu"))
	require.NoError(t, repo.Create("alpha"))
	require.NoError(t, repo.Create("mike"))

	pools, err := repo.List()
	require.NoError(t, err)
	require.Len(t, pools, 3)
	require.Equal(t, "alpha", pools[0].Name)
	require.Equal(t, "mike", pools[1].Name)
	require.Equal(t, "zulu", pools[2].Name)
}

func TestKeyPoolRepository_AddKey_PreservesOrder(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-1", Classic: "AAAA", Expansion: "BBBB"}))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-2", Classic: "CCCC", Expansion: "DDDD"}))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-3", Classic: "EEEE", Expansion: "FFFF", Held: true}))

	pool, err := repo.GetByName("pool-a")
	require.NoError(t, err)
	require.Len(t, pool.Keys, 3)
	require.Equal(t, "key-1", pool.Keys[0].Name)
	require.Equal(t, "AAAA", pool.Keys[0].Classic)
	require.Equal(t, "BBBB", pool.Keys[0].Expansion)
	require.Equal(t, "key-2", pool.Keys[1].Name)
	require.Equal(t, "key-3", pool.Keys[2].Name)
	require.True(t, pool.Keys[2].Held, "Held flag should persist")
}

func TestKeyPoolRepository_AddKey_PoolNotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	err := repo.AddKey("ghost", fleet.Credential{Name: "key-1"})
	var notFound *fleet.KeyPoolNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyPoolNotFoundError")
}

func TestKeyPoolRepository_AddKey_DuplicateNameInPool(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-1"}))

	err := repo.AddKey("pool-a", fleet.Credential{Name: "key-1"})
	require.Error(t, err, "Duplicate key name within a pool should fail")
}

func TestKeyPoolRepository_AddKey_SameNameAcrossPools(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	require.NoError(t, repo.Create("pool-b"))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-1"}))
	require.NoError(t, repo.AddKey("pool-b", fleet.Credential{Name: "key-1"}),
		"Same key name in different pools should be allowed")
}

func TestKeyPoolRepository_RemoveKey_CompactsOrder(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	for _, name := range []string{"key-1", "key-2", "key-3"} {
		require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: name}))
	}

	require.NoError(t, repo.RemoveKey("pool-a", "key-2"))

	pool, err := repo.GetByName("pool-a")
	require.NoError(t, err)
	require.Len(t, pool.Keys, 2)
	require.Equal(t, "key-1", pool.Keys[0].Name)
	require.Equal(t, "key-3", pool.Keys[1].Name)

	// A key added after the removal lands at the end
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-4"}))
	pool, err = repo.GetByName("pool-a")
	require.NoError(t, err)
	require.Equal(t, []string{"key-1", "key-3", "key-4"}, keyNames(pool.Keys))
}

func TestKeyPoolRepository_RemoveKey_NotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))

	err := repo.RemoveKey("pool-a", "ghost")
	var notFound *fleet.KeyNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyNotFoundError")
	require.Equal(t, "pool-a", notFound.Pool)
	require.Equal(t, "ghost", notFound.Name)
}

func TestKeyPoolRepository_SetHeld(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-1"}))

	require.NoError(t, repo.SetHeld("pool-a", "key-1", true))
	pool, err := repo.GetByName("pool-a")
	require.NoError(t, err)
	require.True(t, pool.Keys[0].Held)

	require.NoError(t, repo.SetHeld("pool-a", "key-1", false))
	pool, err = repo.GetByName("pool-a")
	require.NoError(t, err)
	require.False(t, pool.Keys[0].Held)
}

func TestKeyPoolRepository_SetHeld_KeyNotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))

	err := repo.SetHeld("pool-a", "ghost", true)
	var notFound *fleet.KeyNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyNotFoundError")
}

func TestKeyPoolRepository_SetHeld_PoolNotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	err := repo.SetHeld("ghost", "key-1", true)
	var notFound *fleet.KeyPoolNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyPoolNotFoundError")
}

func TestKeyPoolRepository_Delete_CascadesCredentials(t *testing.T) {
	db := setupTestDB(t)
	repo := db.KeyPoolRepository()

	require.NoError(t, repo.Create("pool-a"))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-1"}))
	require.NoError(t, repo.AddKey("pool-a", fleet.Credential{Name: "key-2"}))

	require.NoError(t, repo.Delete("pool-a"))

	var count int
	err := db.Connection().QueryRow("SELECT COUNT(*) FROM credentials").Scan(&count)
	require.NoError(t, err)
	require.Zero(t, count, "Deleting a pool should cascade to its credentials")
}

func TestKeyPoolRepository_Delete_NotFound(t *testing.T) {
	repo := setupTestDB(t).KeyPoolRepository()

	err := repo.Delete("ghost")
	var notFound *fleet.KeyPoolNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be KeyPoolNotFoundError")
}

func keyNames(keys []fleet.Credential) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}
