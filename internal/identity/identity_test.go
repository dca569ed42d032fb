package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveGeneratesOnce(t *testing.T) {
	store := NewMemoryStore("")

	first, err := Resolve(store)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first, "user_"))

	second, err := Resolve(store)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.Saves())
}

func TestResolveKeepsExistingValue(t *testing.T) {
	store := NewMemoryStore("user_existing")

	id, err := Resolve(store)
	require.NoError(t, err)
	require.Equal(t, "user_existing", id)
	require.Zero(t, store.Saves())
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget", "state.yaml")

	first, err := Resolve(NewFileStore(path))
	require.NoError(t, err)

	// A second store over the same file stands in for a later run.
	second, err := Resolve(NewFileStore(path))
	require.NoError(t, err)
	require.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: [unterminated"), 0o600))

	_, err := Resolve(NewFileStore(path))
	require.Error(t, err)
}

func TestFileStoreCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site-chat", "identity.yaml")
	store := NewFileStore(path)
	require.Equal(t, path, store.Path())

	require.NoError(t, store.Save("user_abc"))
	_, err := os.Stat(store.Path())
	require.NoError(t, err)
}
