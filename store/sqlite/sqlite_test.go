package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

func newTestStore(t *testing.T) *SqliteCheckpointStore {
	t.Helper()
	s, err := NewSqliteCheckpointStore(SqliteOptions{
		Path:      filepath.Join(t.TempDir(), "checkpoints.db"),
		TableName: "graph_checkpoints",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqliteCheckpointStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := &store.Checkpoint{
		ID:           "cp-1",
		NodeName:     "research",
		State:        map[string]any{"frontier": []any{"write"}},
		Timestamp:    time.Now().UTC(),
		Version:      1,
		RunID:        "run-1",
		Label:        "after research",
		GraphVersion: 3,
		Metadata:     map[string]any{store.MetaEvent: "pause"},
	}
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "research", loaded.NodeName)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "after research", loaded.Label)
	assert.Equal(t, 3, loaded.GraphVersion)
	assert.Equal(t, "pause", loaded.Metadata[store.MetaEvent])

	var label string
	var graphVersion int
	row := s.db.QueryRowContext(ctx, "SELECT label, graph_version FROM graph_checkpoints WHERE run_id = ?", "run-1")
	require.NoError(t, row.Scan(&label, &graphVersion))
	assert.Equal(t, "after research", label)
	assert.Equal(t, 3, graphVersion)

	state := loaded.State.(map[string]any)
	assert.Equal(t, []any{"write"}, state["frontier"])

	// upsert
	cp.NodeName = "write"
	require.NoError(t, s.Save(ctx, cp))
	loaded, err = s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "write", loaded.NodeName)

	require.NoError(t, s.Save(ctx, &store.Checkpoint{
		ID:        "cp-2",
		State:     map[string]any{},
		Timestamp: time.Now().UTC(),
		Version:   2,
		RunID:     "run-1",
	}))

	list, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, "cp-2", list[1].ID)

	require.NoError(t, s.Delete(ctx, "cp-1"))
	_, err = s.Load(ctx, "cp-1")
	assert.True(t, errors.Is(err, store.ErrCheckpointNotFound))

	require.NoError(t, s.Clear(ctx, "run-1"))
	list, err = s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
