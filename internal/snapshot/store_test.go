package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestNewLocalStore(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "existing directory", path: tempDir},
		{name: "empty path", path: "", wantErr: true},
		{name: "missing directory", path: filepath.Join(tempDir, "missing"), wantErr: true},
		{name: "regular file", path: file, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewLocalStore(tt.path, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, store.BasePath())
		})
	}
}

func TestLocalStore_Paths(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	base := store.BasePath()
	assert.Equal(t, filepath.Join(base, "A"), store.Root("A"))
	assert.Equal(t, filepath.Join(base, "A", "current"), store.CurrentPath("A"))
	assert.Equal(t, filepath.Join(base, "A", "2024-01-05"), store.DatedPath("A", mustDate(t, "2024-01-05")))
}

func TestLocalStore_List(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	root := store.Root("A")
	for _, d := range []string{"2024-01-10", "2024-01-01", "lost+found", "not-a-date", "2024-01-05"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024-02-01"), []byte("file"), 0644))
	require.NoError(t, os.Symlink("2024-01-10", filepath.Join(root, CurrentLink)))

	listing, err := store.List("A")
	require.NoError(t, err)

	var names []string
	for _, s := range listing.Snapshots {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-05", "2024-01-10"}, names)
	assert.ElementsMatch(t, []string{"lost+found", "not-a-date", "2024-02-01", CurrentLink}, listing.Skipped)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	listing, err := store.List("never-backed-up")
	require.NoError(t, err)
	assert.Empty(t, listing.Snapshots)
}

func TestLocalStore_Prepare(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	dir, err := store.Prepare("A", mustDate(t, "2024-01-05"))
	require.NoError(t, err)
	assert.DirExists(t, dir)

	current, err := store.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", current)

	// repoint to a newer day
	_, err = store.Prepare("A", mustDate(t, "2024-01-10"))
	require.NoError(t, err)
	current, err = store.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-10", current)

	info, err := os.Stat(store.CurrentPath("A"))
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "current must resolve to the dated directory")

	// same day again is a no-op apart from the repoint
	_, err = store.Prepare("A", mustDate(t, "2024-01-10"))
	require.NoError(t, err)

	entries, err := os.ReadDir(store.Root("A"))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temporary links may be left behind")
}

func TestLocalStore_PrepareRefusesNonSymlinkCurrent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(store.CurrentPath("A"), 0755))

	_, err = store.Prepare("A", mustDate(t, "2024-01-05"))
	assert.Error(t, err)
}

func TestLocalStore_ResolveWithoutCurrent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	current, err := store.Resolve("A")
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestLocalStore_Remove(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	dir := store.DatedPath("A", mustDate(t, "2024-01-01"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "data.tar.gz"), []byte("x"), 0644))

	require.NoError(t, store.Remove(dir))
	assert.NoDirExists(t, dir)
}

func TestParseDate(t *testing.T) {
	_, ok := ParseDate("2024-01-05")
	assert.True(t, ok)
	_, ok = ParseDate("2024-13-05")
	assert.False(t, ok)
	_, ok = ParseDate("lost+found")
	assert.False(t, ok)
}
