package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/release-notes-watcher/internal/state"
	"github.com/JakeFAU/release-notes-watcher/internal/state/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir(), Object: "hash.txt"})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "state")
		_, err := local.New(local.Config{BaseDir: dir, Object: "hash.txt"})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{Object: "hash.txt"})
		assert.Error(t, err)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("ObjectWithSeparator", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: t.TempDir(), Object: filepath.Join("..", "escape.txt")})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file, Object: "hash.txt"})
		assert.Error(t, err)
	})
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir, Object: "hash.txt"})
	require.NoError(t, err)

	got, err := store.PreviousHash(ctx)
	require.NoError(t, err)
	assert.False(t, got.Found)

	require.NoError(t, store.SetHash(ctx, "abc123", &got))

	got, err = store.PreviousHash(ctx)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "abc123", got.Hash)

	raw, err := os.ReadFile(filepath.Join(dir, "hash.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(raw), "file body must be the bare digest")
}

func TestStoreDetectsConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir, Object: "hash.txt"})
	require.NoError(t, err)

	absent, err := store.PreviousHash(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SetHash(ctx, "first", &absent))
	assert.ErrorIs(t, store.SetHash(ctx, "second", &absent), state.ErrConflict)

	current, err := store.PreviousHash(ctx)
	require.NoError(t, err)

	// Force a visibly different mtime for the out-of-band write.
	path := filepath.Join(dir, "hash.txt")
	require.NoError(t, os.WriteFile(path, []byte("external"), 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.ErrorIs(t, store.SetHash(ctx, "third", &current), state.ErrConflict)
	require.NoError(t, store.SetHash(ctx, "forced", nil))

	final, err := store.PreviousHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "forced", final.Hash)
}

func TestStoreConflictWithinSameMtime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir, Object: "hash.txt"})
	require.NoError(t, err)

	require.NoError(t, store.SetHash(ctx, "first", nil))
	path := filepath.Join(dir, "hash.txt")
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, tick, tick))

	read, err := store.PreviousHash(ctx)
	require.NoError(t, err)

	// Another process rewrites the file; a coarse clock leaves mtime unchanged.
	require.NoError(t, os.WriteFile(path, []byte("other"), 0o600))
	require.NoError(t, os.Chtimes(path, tick, tick))

	after, err := store.PreviousHash(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, read.Generation, after.Generation)
	assert.ErrorIs(t, store.SetHash(ctx, "mine", &read), state.ErrConflict)
}
