package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// MetaEvent records what triggered a checkpoint ("pause" or "manual").
const MetaEvent = "event"

// ErrCheckpointNotFound is wrapped by every backend when a checkpoint id is unknown.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint represents a saved execution state at a specific point of a run.
// RunID, Label and GraphVersion are indexed by backends that support it;
// Metadata carries anything else.
type Checkpoint struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	NodeName     string         `json:"node_name"`
	Label        string         `json:"label,omitempty"`
	GraphVersion int            `json:"graph_version"`
	State        any            `json:"state"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Version      int            `json:"version"`
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint, replacing any checkpoint with the same ID.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID. Unknown ids yield an error wrapping
	// ErrCheckpointNotFound.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a given execution, oldest first.
	List(ctx context.Context, executionID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for an execution
	Clear(ctx context.Context, executionID string) error
}

// SortByVersion orders checkpoints by version, then timestamp.
func SortByVersion(cps []*Checkpoint) {
	slices.SortStableFunc(cps, func(a, b *Checkpoint) int {
		if a.Version != b.Version {
			return a.Version - b.Version
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
}
