package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Story: Snapshot Storage
// Raw pages are kept per task so results can be audited later

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	// Given an empty store
	base := t.TempDir()
	store := fs.NewSnapshotStore(base)

	// When I save the second page of a task
	ref, err := store.Save(context.Background(), "task-1", 1, "<html>two</html>")
	require.NoError(t, err)

	// Then the reference points into the task's directory
	assert.Equal(t, "task-1/page-0001.html", ref)
	_, err = os.Stat(filepath.Join(base, "task-1", "page-0001.html"))
	require.NoError(t, err)

	// And loading it returns the content
	content, err := store.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "<html>two</html>", content)
}

func TestSnapshotStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store := fs.NewSnapshotStore(base)

	_, err := store.Save(context.Background(), "task-1", 0, "a")
	require.NoError(t, err)
	_, err = store.Save(context.Background(), "task-1", 0, "b")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "task-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "page-0000.html", entries[0].Name())

	content, err := store.Load(context.Background(), "task-1/page-0000.html")
	require.NoError(t, err)
	assert.Equal(t, "b", content)
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := fs.NewSnapshotStore(t.TempDir())

	_, err := store.Load(context.Background(), "task-1/page-0000.html")

	assert.Equal(t, autoprobe.ENOTFOUND, autoprobe.ErrorCode(err))
}

func TestSnapshotStore_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	store := fs.NewSnapshotStore(t.TempDir())

	_, err := store.Load(context.Background(), "../secret")
	assert.Equal(t, autoprobe.EINVALID, autoprobe.ErrorCode(err))

	_, err = store.Save(context.Background(), "../x", 0, "a")
	assert.Equal(t, autoprobe.EINVALID, autoprobe.ErrorCode(err))

	err = store.DeleteTask(context.Background(), "..")
	assert.Equal(t, autoprobe.EINVALID, autoprobe.ErrorCode(err))
}

func TestSnapshotStore_DeleteTask(t *testing.T) {
	t.Parallel()

	store := fs.NewSnapshotStore(t.TempDir())
	ref, err := store.Save(context.Background(), "task-1", 0, "a")
	require.NoError(t, err)

	require.NoError(t, store.DeleteTask(context.Background(), "task-1"))
	require.NoError(t, store.DeleteTask(context.Background(), "task-1"))

	_, err = store.Load(context.Background(), ref)
	assert.Equal(t, autoprobe.ENOTFOUND, autoprobe.ErrorCode(err))
}
