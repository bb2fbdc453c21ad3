package resilience

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissingReturnsEmptyState(t *testing.T) {
	store := NewStore(t.TempDir())

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StateVersion, st.Version)
	assert.NotNil(t, st.Scopes)
	assert.False(t, store.Exists())
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := NewStore(t.TempDir())
	reset := time.Now().Add(time.Minute).Truncate(time.Second)

	st := NewState()
	st.Scopes["emsi_open"] = RateLimitState{Remaining: 0, ResetAt: reset, Exhausted: true}
	require.NoError(t, store.Save(st))
	assert.True(t, store.Exists())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	got := loaded.Scopes["emsi_open"]
	assert.True(t, got.Exhausted)
	assert.True(t, got.ResetAt.Equal(reset))
}

func TestStoreResetsCorruptState(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Scopes)
}

func TestStoreResetsOlderSchema(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(store.Dir(), 0700))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version":1,"scopes":{"x":{"exhausted":true}}}`), 0600))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Scopes)
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Update(func(st *State) error {
		st.Budget.Tokens = 7
		return nil
	}))
	require.NoError(t, store.Update(func(st *State) error {
		st.Budget.Tokens--
		return nil
	}))

	st, err := store.Load()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, st.Budget.Tokens, 0.001)
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(NewState()))
	require.True(t, store.Exists())

	require.NoError(t, store.Clear())
	assert.False(t, store.Exists())

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}

func TestDefaultStateDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-test")
	store := NewStore("")
	assert.Equal(t, "/tmp/xdg-test/lightcast-mcp/resilience", store.Dir())
}
