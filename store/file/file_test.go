package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

func TestFileCheckpointStore_New(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "checkpoints")
	fs, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)
	require.NotNil(t, fs)

	_, err = os.Stat(dir)
	assert.NoError(t, err, "directory should have been created")
}

func TestFileCheckpointStore_RoundTrip(t *testing.T) {
	t.Parallel()

	fs, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	cp := &store.Checkpoint{
		ID:        "cp-1",
		NodeName:  "classify",
		State:     map[string]any{"node_outputs": map[string]any{"classify": "billing"}},
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Version:   1,
		RunID:     "run-1",
		Label:     "manual",
	}
	require.NoError(t, fs.Save(ctx, cp))

	_, err = os.Stat(filepath.Join(fs.dir, "cp-1.json"))
	require.NoError(t, err)

	loaded, err := fs.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "classify", loaded.NodeName)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "manual", loaded.Label)
	assert.True(t, cp.Timestamp.Equal(loaded.Timestamp))

	state, ok := loaded.State.(map[string]any)
	require.True(t, ok)
	outputs := state["node_outputs"].(map[string]any)
	assert.Equal(t, "billing", outputs["classify"])
}

func TestFileCheckpointStore_LoadMissing(t *testing.T) {
	t.Parallel()

	fs, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "ghost")
	assert.True(t, errors.Is(err, store.ErrCheckpointNotFound))
}

func TestFileCheckpointStore_RejectsPathIDs(t *testing.T) {
	t.Parallel()

	fs, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	err = fs.Save(context.Background(), &store.Checkpoint{ID: "../escape"})
	assert.Error(t, err)
}

func TestFileCheckpointStore_ListDeleteClear(t *testing.T) {
	t.Parallel()

	fs, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	save := func(id, exec string, version int) {
		require.NoError(t, fs.Save(ctx, &store.Checkpoint{
			ID:      id,
			RunID:   exec,
			Version: version,
		}))
	}
	save("b", "run-1", 2)
	save("a", "run-1", 1)
	save("c", "run-2", 1)

	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(fs.dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fs.dir, "broken.json"), []byte("{"), 0o644))

	list, err := fs.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	require.NoError(t, fs.Delete(ctx, "a"))
	require.NoError(t, fs.Delete(ctx, "a"))

	list, err = fs.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, fs.Clear(ctx, "run-1"))
	list, err = fs.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = fs.List(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
