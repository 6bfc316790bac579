// Package memory provides a process-local checkpoint store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

// MemoryCheckpointStore keeps checkpoints in maps guarded by a RWMutex.
// Stored records are shallow copies; callers must not mutate State after Save.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	executions  map[string][]string
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		executions:  make(map[string][]string),
	}
}

// Save stores a checkpoint
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.checkpoints[checkpoint.ID]; ok {
		m.unindex(prev.RunID, prev.ID)
	}

	cp := copyCheckpoint(checkpoint)
	m.checkpoints[cp.ID] = cp
	if execID := cp.RunID; execID != "" {
		m.executions[execID] = append(m.executions[execID], cp.ID)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	return copyCheckpoint(cp), nil
}

// List returns all checkpoints for a given execution ordered by version.
func (m *MemoryCheckpointStore) List(_ context.Context, executionID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.executions[executionID]
	result := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := m.checkpoints[id]; ok {
			result = append(result, copyCheckpoint(cp))
		}
	}
	store.SortByVersion(result)
	return result, nil
}

// Delete removes a checkpoint. Deleting an unknown id is a no-op.
func (m *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	delete(m.checkpoints, checkpointID)
	m.unindex(cp.RunID, checkpointID)
	return nil
}

// Clear removes all checkpoints for an execution
func (m *MemoryCheckpointStore) Clear(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.executions[executionID] {
		delete(m.checkpoints, id)
	}
	delete(m.executions, executionID)
	return nil
}

// unindex must be called with mu held.
func (m *MemoryCheckpointStore) unindex(executionID, checkpointID string) {
	ids := m.executions[executionID]
	for i, id := range ids {
		if id == checkpointID {
			m.executions[executionID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.executions[executionID]) == 0 {
		delete(m.executions, executionID)
	}
}

func copyCheckpoint(cp *store.Checkpoint) *store.Checkpoint {
	out := *cp
	if cp.Metadata != nil {
		out.Metadata = make(map[string]any, len(cp.Metadata))
		for k, v := range cp.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
