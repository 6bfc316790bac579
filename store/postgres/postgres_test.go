package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

const (
	selectCols = "SELECT id, run_id, node_name, label, graph_version, state, metadata, timestamp, version FROM checkpoints"
	loadQuery  = selectCols + " WHERE id = $1"
	listQuery  = selectCols + " WHERE run_id = $1 ORDER BY version, timestamp"
)

var rowColumns = []string{"id", "run_id", "node_name", "label", "graph_version", "state", "metadata", "timestamp", "version"}

func TestPostgresCheckpointStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "")

	cp := &store.Checkpoint{
		ID:           "cp-1",
		RunID:        "run-1",
		NodeName:     "approve",
		Label:        "pause before_node approve",
		GraphVersion: 2,
		State:        map[string]any{"frontier": []string{"approve"}},
		Timestamp:    time.Now(),
		Version:      1,
		Metadata:     map[string]any{store.MetaEvent: "pause"},
	}

	stateJSON, _ := json.Marshal(cp.State)
	metadataJSON, _ := json.Marshal(cp.Metadata)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checkpoints")).
		WithArgs(cp.ID, "run-1", cp.NodeName, cp.Label, 2, stateJSON, metadataJSON, cp.Timestamp, cp.Version).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Save_MarshalError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	err = s.Save(context.Background(), &store.Checkpoint{ID: "cp-1", State: make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal state")
}

func TestPostgresCheckpointStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	stateJSON, _ := json.Marshal(map[string]any{"input": "hello"})
	metadataJSON, _ := json.Marshal(map[string]any{store.MetaEvent: "manual"})

	rows := pgxmock.NewRows(rowColumns).
		AddRow("cp-1", "run-1", "approve", "manual", 4, stateJSON, metadataJSON, time.Now(), 3)

	mock.ExpectQuery(regexp.QuoteMeta(loadQuery)).WithArgs("cp-1").WillReturnRows(rows)

	loaded, err := s.Load(context.Background(), "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "approve", loaded.NodeName)
	assert.Equal(t, 3, loaded.Version)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "manual", loaded.Label)
	assert.Equal(t, 4, loaded.GraphVersion)
	assert.Equal(t, "manual", loaded.Metadata[store.MetaEvent])
	assert.Equal(t, "hello", loaded.State.(map[string]any)["input"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	mock.ExpectQuery(regexp.QuoteMeta(loadQuery)).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	loaded, err := s.Load(context.Background(), "ghost")
	assert.Nil(t, loaded)
	assert.True(t, errors.Is(err, store.ErrCheckpointNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_Load_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	mock.ExpectQuery(regexp.QuoteMeta(loadQuery)).WithArgs("cp-1").WillReturnError(errors.New("connection reset"))

	_, err = s.Load(context.Background(), "cp-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrCheckpointNotFound))
	assert.Contains(t, err.Error(), "failed to load checkpoint")
}

func TestPostgresCheckpointStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	rows := pgxmock.NewRows(rowColumns)
	for i, id := range []string{"cp-1", "cp-2"} {
		stateJSON, _ := json.Marshal(map[string]any{"step": i})
		rows.AddRow(id, "run-1", "node", "", 1, stateJSON, []byte{}, time.Now(), i+1)
	}

	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("run-1").
		WillReturnRows(rows)

	list, err := s.List(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, 2, list[1].Version)
	assert.Nil(t, list[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckpointStore_DeleteAndClear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresCheckpointStoreWithPool(mock, "checkpoints")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM checkpoints WHERE id = $1")).
		WithArgs("cp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM checkpoints WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	require.NoError(t, s.Delete(context.Background(), "cp-1"))
	require.NoError(t, s.Clear(context.Background(), "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
