// Package postgres implements store.CheckpointStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

// columns is the select list shared by every read, in scan order.
const columns = "id, run_id, node_name, label, graph_version, state, metadata, timestamp, version"

// DBPool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore using PostgreSQL
type PostgresCheckpointStore struct {
	pool  DBPool
	table string
}

var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "checkpoints"
}

// NewPostgresCheckpointStore creates a pool and ensures the schema exists.
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewPostgresCheckpointStoreWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresCheckpointStoreWithPool wraps an existing pool.
func NewPostgresCheckpointStoreWithPool(pool DBPool, tableName string) *PostgresCheckpointStore {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &PostgresCheckpointStore{pool: pool, table: tableName}
}

// InitSchema creates the table and its run index.
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			node_name     TEXT NOT NULL DEFAULT '',
			label         TEXT NOT NULL DEFAULT '',
			graph_version INTEGER NOT NULL DEFAULT 0,
			state         JSONB NOT NULL,
			metadata      JSONB,
			timestamp     TIMESTAMPTZ NOT NULL,
			version       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run ON %[1]s (run_id, version);
	`, s.table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Save upserts a checkpoint.
func (s *PostgresCheckpointStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	var meta []byte
	if len(cp.Metadata) > 0 {
		if meta, err = json.Marshal(cp.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			node_name = EXCLUDED.node_name,
			label = EXCLUDED.label,
			graph_version = EXCLUDED.graph_version,
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			timestamp = EXCLUDED.timestamp,
			version = EXCLUDED.version
	`, s.table, columns)

	_, err = s.pool.Exec(ctx, upsert,
		cp.ID, cp.RunID, cp.NodeName, cp.Label, cp.GraphVersion,
		state, meta, cp.Timestamp, cp.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *PostgresCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columns, s.table)

	cp, err := scan(s.pool.QueryRow(ctx, q, checkpointID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	case err != nil:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List returns the run's checkpoints by ascending version.
func (s *PostgresCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE run_id = $1 ORDER BY version, timestamp", columns, s.table)

	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]*store.Checkpoint, 0)
	for rows.Next() {
		cp, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return out, nil
}

// Delete removes a checkpoint
func (s *PostgresCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints of a run.
func (s *PostgresCheckpointStore) Clear(ctx context.Context, runID string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.table), runID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

func scan(row pgx.Row) (*store.Checkpoint, error) {
	var (
		cp    store.Checkpoint
		state []byte
		meta  []byte
	)
	err := row.Scan(&cp.ID, &cp.RunID, &cp.NodeName, &cp.Label, &cp.GraphVersion,
		&state, &meta, &cp.Timestamp, &cp.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(state, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}
