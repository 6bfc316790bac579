// Package sqlite implements store.CheckpointStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

// columns is the select list shared by every read.
const columns = "id, run_id, node_name, label, graph_version, state, metadata, timestamp, version"

// SqliteCheckpointStore implements store.CheckpointStore using SQLite
type SqliteCheckpointStore struct {
	db    *sql.DB
	table string
}

var _ store.CheckpointStore = (*SqliteCheckpointStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "checkpoints"
}

// NewSqliteCheckpointStore opens the database and creates the table.
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	table := opts.TableName
	if table == "" {
		table = "checkpoints"
	}
	s := &SqliteCheckpointStore{db: db, table: table}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the table and its run index.
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			node_name     TEXT NOT NULL DEFAULT '',
			label         TEXT NOT NULL DEFAULT '',
			graph_version INTEGER NOT NULL DEFAULT 0,
			state         TEXT NOT NULL,
			metadata      TEXT,
			timestamp     DATETIME NOT NULL,
			version       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run ON %[1]s (run_id, version);
	`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save upserts a checkpoint.
func (s *SqliteCheckpointStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	var meta sql.NullString
	if len(cp.Metadata) > 0 {
		b, err := json.Marshal(cp.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			node_name = excluded.node_name,
			label = excluded.label,
			graph_version = excluded.graph_version,
			state = excluded.state,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp,
			version = excluded.version
	`, s.table, columns)

	_, err = s.db.ExecContext(ctx, upsert,
		cp.ID, cp.RunID, cp.NodeName, cp.Label, cp.GraphVersion,
		string(state), meta, cp.Timestamp, cp.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *SqliteCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, s.table)

	cp, err := scan(s.db.QueryRowContext(ctx, q, checkpointID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	case err != nil:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List returns the run's checkpoints by ascending version.
func (s *SqliteCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	return s.query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE run_id = ? ORDER BY version, timestamp", columns, s.table),
		runID)
}

func (s *SqliteCheckpointStore) query(ctx context.Context, q string, args ...any) ([]*store.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
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
func (s *SqliteCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints of a run.
func (s *SqliteCheckpointStore) Clear(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", s.table), runID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*store.Checkpoint, error) {
	var (
		cp    store.Checkpoint
		state string
		meta  sql.NullString
	)
	err := row.Scan(&cp.ID, &cp.RunID, &cp.NodeName, &cp.Label, &cp.GraphVersion,
		&state, &meta, &cp.Timestamp, &cp.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}
