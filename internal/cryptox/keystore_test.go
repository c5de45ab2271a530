package cryptox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyFile_CreateLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "relaypacs.key")
	ks := NewSessionKeyFile(path)

	_, err := ks.Load()
	require.ErrorIs(t, err, ErrNoKey)

	key := make([]byte, KeySize)
	key[0] = 42
	require.NoError(t, ks.Create(key))
	require.ErrorIs(t, ks.Create(make([]byte, KeySize)), ErrKeyExists)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	got, err := ks.Load()
	require.NoError(t, err)
	assert.Equal(t, key, got)

	require.NoError(t, ks.Clear())
	require.NoError(t, ks.Clear(), "clearing twice is fine")
	_, err = ks.Load()
	require.ErrorIs(t, err, ErrNoKey)
}

func TestSessionKeyFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k")
	require.NoError(t, os.WriteFile(path, []byte("!!not base64!!"), 0o600))

	_, err := NewSessionKeyFile(path).Load()
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemoryKeyStore_ReturnsCopy(t *testing.T) {
	ks := NewMemoryKeyStore()
	key := []byte("0123456789abcdef0123456789abcdef")
	require.NoError(t, ks.Create(key))
	require.ErrorIs(t, ks.Create(key), ErrKeyExists)

	got, err := ks.Load()
	require.NoError(t, err)
	got[0] = 'X'

	again, err := ks.Load()
	require.NoError(t, err)
	assert.Equal(t, byte('0'), again[0])
}

func TestPasswordHash(t *testing.T) {
	h := HashPassword("s3cret")

	ok, err := VerifyPassword("s3cret", h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", h)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NotEqual(t, h, HashPassword("s3cret"), "salted")

	_, err = VerifyPassword("x", "garbage")
	require.ErrorIs(t, err, ErrInvalidHash)
}
