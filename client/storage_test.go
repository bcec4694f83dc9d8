package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	_, ok, err := s.Get("token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("token", "abc"))
	v, ok, err := s.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Delete("token"))
	_, ok, _ = s.Get("token")
	assert.False(t, ok)
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := NewFileStorage(dir)
	require.NoError(t, err)

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := s.Get("token")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set writes owner only file", func(t *testing.T) {
		require.NoError(t, s.Set("token", "abc"))

		info, err := os.Stat(filepath.Join(dir, "token"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		v, ok, err := s.Get("token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc", v)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete("token"))
		require.NoError(t, s.Delete("token"))
		_, ok, _ := s.Get("token")
		assert.False(t, ok)
	})

	t.Run("rejects path keys", func(t *testing.T) {
		assert.Error(t, s.Set("../escape", "x"))
		assert.Error(t, s.Set("a/b", "x"))
		_, _, err := s.Get("..")
		assert.Error(t, err)
	})
}

func TestTokenStore(t *testing.T) {
	t.Run("loads persisted token", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Set(TokenKey, "persisted"))

		store, err := NewTokenStore(storage)
		require.NoError(t, err)

		token, ok := store.Get()
		assert.True(t, ok)
		assert.Equal(t, "persisted", token)
		assert.Nil(t, store.User())
	})

	t.Run("set writes through and empty deletes", func(t *testing.T) {
		storage := NewMemoryStorage()
		store, err := NewTokenStore(storage)
		require.NoError(t, err)

		_, ok := store.Get()
		assert.False(t, ok)

		require.NoError(t, store.Set("T1"))
		v, ok, _ := storage.Get(TokenKey)
		assert.True(t, ok)
		assert.Equal(t, "T1", v)

		require.NoError(t, store.Set(""))
		_, ok, _ = storage.Get(TokenKey)
		assert.False(t, ok)
		_, ok = store.Get()
		assert.False(t, ok)
	})

	t.Run("user is held in memory", func(t *testing.T) {
		store, err := NewTokenStore(nil)
		require.NoError(t, err)

		store.SetUser(&Profile{ID: "7"})
		assert.Equal(t, "7", store.User().ID)
		store.SetUser(nil)
		assert.Nil(t, store.User())
	})
}
