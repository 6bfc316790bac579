package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

func sampleState(runID string) *graph.ExecutionState {
	return &graph.ExecutionState{
		RunID:       runID,
		Input:       "hello",
		Frontier:    []string{"b"},
		Pending:     []graph.Dispatch{{NodeID: "b", Input: "a out", Via: &graph.Edge{From: "a", To: "b"}}},
		NodeOutputs: map[string]string{"a": "a out"},
		History: []graph.HistoryEntry{
			{NodeID: "a", NodeName: "Alpha", Input: "hello", Output: "a out"},
		},
		Joins: graph.JoinState{
			Arrived: map[string]map[string]string{"m": {"x": "X"}},
		},
		PauseRequest: graph.PauseBeforeNode,
		Paused:       true,
		GraphVersion: 2,
		Graph: &graph.Definition{
			Version: 2,
			Nodes:   []graph.Node{{ID: "a"}, {ID: "b"}},
			Edges:   []graph.Edge{{From: "a", To: "b"}},
		},
	}
}

func TestStoreCheckpointManager_CreateRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := graph.NewStoreCheckpointManager(graph.DefaultCheckpointConfig())
	st := sampleState("run-1")

	id, err := m.Create(ctx, st, "pause before_node b")
	require.NoError(t, err)

	cp, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "b", cp.NodeName)
	assert.Equal(t, 1, cp.Version)
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, "pause before_node b", cp.Label)
	assert.Equal(t, 2, cp.GraphVersion)
	assert.Equal(t, "pause", cp.Metadata[store.MetaEvent])

	restored, err := m.Restore(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, st.NodeOutputs, restored.NodeOutputs)
	assert.Equal(t, st.Pending, restored.Pending)
	assert.Equal(t, st.Joins, restored.Joins)
	assert.Equal(t, st.Graph, restored.Graph)
	assert.Equal(t, "a out", restored.History[0].Output)
}

func TestStoreCheckpointManager_FileStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs, err := graph.NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	m := graph.NewStoreCheckpointManager(graph.CheckpointConfig{Store: fs})

	st := sampleState("run-file")
	id, err := m.Create(ctx, st, "manual")
	require.NoError(t, err)

	restored, err := m.Restore(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, st.Pending, restored.Pending)
	assert.Equal(t, st.NodeOutputs, restored.NodeOutputs)
	assert.Equal(t, graph.PauseBeforeNode, restored.PauseRequest)
}

func TestStoreCheckpointManager_VersionsAndPruning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := graph.NewStoreCheckpointManager(graph.CheckpointConfig{
		Store:          graph.NewMemoryCheckpointStore(),
		MaxCheckpoints: 2,
	})

	var ids []string
	for range 4 {
		id, err := m.Create(ctx, sampleState("run-p"), "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := m.Create(ctx, sampleState("other-run"), "")
	require.NoError(t, err)

	list, err := m.List(ctx, "run-p")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[3], list[1].ID)
	assert.Equal(t, 3, list[0].Version)
	assert.Equal(t, 4, list[1].Version)

	gone, err := m.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, gone)

	other, err := m.List(ctx, "other-run")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestStoreCheckpointManager_Unknown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := graph.NewStoreCheckpointManager(graph.CheckpointConfig{})

	cp, err := m.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, cp)

	_, err = m.Restore(ctx, "missing")
	var nf *graph.CheckpointNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)

	_, err = m.Create(ctx, nil, "")
	assert.Error(t, err)
}

func TestExecutionStateClone(t *testing.T) {
	t.Parallel()

	st := sampleState("r")
	cp := st.Clone()
	require.Equal(t, st, cp)

	cp.NodeOutputs["a"] = "changed"
	cp.Pending[0].Via.To = "z"
	cp.Joins.Arrived["m"]["x"] = "changed"
	cp.Graph.Nodes[0].ID = "changed"

	assert.Equal(t, "a out", st.NodeOutputs["a"])
	assert.Equal(t, "b", st.Pending[0].Via.To)
	assert.Equal(t, "X", st.Joins.Arrived["m"]["x"])
	assert.Equal(t, "a", st.Graph.Nodes[0].ID)

	var nilState *graph.ExecutionState
	assert.Nil(t, nilState.Clone())
}
