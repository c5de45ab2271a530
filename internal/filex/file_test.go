package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uploads", "u-1", "7")

	got, err := EnsureDir(dir, 0o750)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	_, err = EnsureDir(dir, 0o750)
	require.NoError(t, err, "existing directory is fine")

	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err = EnsureDir(filepath.Join(blocker, "sub"), 0o750)
	require.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "session.key")

	require.NoError(t, WriteFileAtomic(path, []byte("key-1"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("key-2"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "key-2", string(got))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left next to the target")
}

func TestWriteFileAtomic_UnwritableParent(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, nil, 0o600))
	require.Error(t, WriteFileAtomic(filepath.Join(parent, "chunk"), []byte("x"), 0o600))
}

func TestCreateExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "session.key")

	require.NoError(t, CreateExclusive(path, []byte("first"), 0o600))
	err := CreateExclusive(path, []byte("second"), 0o600)
	require.ErrorIs(t, err, os.ErrExist)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left next to the target")
}
