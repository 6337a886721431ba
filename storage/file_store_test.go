package storage

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	blob := []byte(`{"accessToken":"abc"}`)

	require.NoError(t, store.Save(ctx, blob))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "session.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), []byte("x")))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []byte("x")))
	require.NoError(t, store.Clear(ctx))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing again is a no-op, not an error.
	assert.NoError(t, store.Clear(ctx))
}

func TestFileStoreEncryptedRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.enc")
	store, err := NewFileStore(path, WithEncryptionKey(key))
	require.NoError(t, err)

	ctx := context.Background()
	blob := []byte(`{"refreshToken":"secret"}`)
	require.NoError(t, store.Save(ctx, blob))

	// The raw file must not leak the plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestFileStoreEncryptedRejectsWrongKey(t *testing.T) {
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	_, err := rand.Read(keyA)
	require.NoError(t, err)
	_, err = rand.Read(keyB)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.enc")
	writer, err := NewFileStore(path, WithEncryptionKey(keyA))
	require.NoError(t, err)
	require.NoError(t, writer.Save(context.Background(), []byte("blob")))

	reader, err := NewFileStore(path, WithEncryptionKey(keyB))
	require.NoError(t, err)
	_, err = reader.Load(context.Background())
	assert.Error(t, err)
}

func TestFileStoreRejectsShortKey(t *testing.T) {
	_, err := NewFileStore("unused", WithEncryptionKey([]byte("short")))
	assert.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	blob := []byte("hello")
	require.NoError(t, store.Save(ctx, blob))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// The store keeps its own copy.
	blob[0] = 'X'
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
