package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/store/file"
	memstore "github.com/Engineer-s-Edge/enginedge-core-sub004/store/memory"
)

// Checkpoint is an alias for store.Checkpoint
type Checkpoint = store.Checkpoint

// CheckpointStore is an alias for store.CheckpointStore
type CheckpointStore = store.CheckpointStore

// NewMemoryCheckpointStore creates a new in-memory checkpoint store
func NewMemoryCheckpointStore() store.CheckpointStore {
	return memstore.NewMemoryCheckpointStore()
}

// NewFileCheckpointStore creates a new file-based checkpoint store
func NewFileCheckpointStore(path string) (store.CheckpointStore, error) {
	return file.NewFileCheckpointStore(path)
}

// CheckpointConfig configures checkpointing behavior
type CheckpointConfig struct {
	// Store is the checkpoint storage backend
	Store store.CheckpointStore

	// AutoSave enables a checkpoint at every honored pause
	AutoSave bool

	// MaxCheckpoints limits the number of checkpoints kept per run; 0 keeps all
	MaxCheckpoints int
}

// DefaultCheckpointConfig returns a default checkpoint configuration
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Store:          NewMemoryCheckpointStore(),
		AutoSave:       true,
		MaxCheckpoints: 10,
	}
}

// CheckpointManager captures and restores execution state.
type CheckpointManager interface {
	// Create persists a snapshot of state and returns the checkpoint id.
	Create(ctx context.Context, state *ExecutionState, label string) (string, error)

	// List returns the checkpoints of a run, oldest first.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Get returns the checkpoint, or nil and no error when it does not exist.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// Restore decodes the state captured by a checkpoint. Unknown ids yield
	// *CheckpointNotFoundError.
	Restore(ctx context.Context, id string) (*ExecutionState, error)
}

// StoreCheckpointManager implements CheckpointManager over a CheckpointStore.
type StoreCheckpointManager struct {
	store store.CheckpointStore
	max   int

	// mu serialises version numbering and pruning.
	mu sync.Mutex
}

var _ CheckpointManager = (*StoreCheckpointManager)(nil)

// NewStoreCheckpointManager creates a manager from cfg. A nil store falls
// back to an in-memory store.
func NewStoreCheckpointManager(cfg CheckpointConfig) *StoreCheckpointManager {
	s := cfg.Store
	if s == nil {
		s = NewMemoryCheckpointStore()
	}
	return &StoreCheckpointManager{store: s, max: cfg.MaxCheckpoints}
}

// Store returns the underlying store.
func (m *StoreCheckpointManager) Store() store.CheckpointStore {
	return m.store
}

// Create implements CheckpointManager.
func (m *StoreCheckpointManager) Create(ctx context.Context, state *ExecutionState, label string) (string, error) {
	if state == nil {
		return "", fmt.Errorf("cannot checkpoint nil state")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.List(ctx, state.RunID)
	if err != nil {
		return "", fmt.Errorf("failed to list checkpoints: %w", err)
	}
	version := 1
	for _, cp := range existing {
		if cp.Version >= version {
			version = cp.Version + 1
		}
	}

	nodeName := ""
	if len(state.Frontier) > 0 {
		nodeName = state.Frontier[0]
	}
	cp := &store.Checkpoint{
		ID:           generateCheckpointID(),
		RunID:        state.RunID,
		NodeName:     nodeName,
		Label:        label,
		GraphVersion: state.GraphVersion,
		State:        json.RawMessage(payload),
		Timestamp:    time.Now(),
		Version:      version,
		Metadata:     map[string]any{store.MetaEvent: checkpointEvent(state)},
	}
	if err := m.store.Save(ctx, cp); err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if m.max > 0 && len(existing)+1 > m.max {
		store.SortByVersion(existing)
		for _, old := range existing[:len(existing)+1-m.max] {
			if err := m.store.Delete(ctx, old.ID); err != nil {
				return cp.ID, fmt.Errorf("failed to prune checkpoint %s: %w", old.ID, err)
			}
		}
	}
	return cp.ID, nil
}

func checkpointEvent(state *ExecutionState) string {
	if state.Paused {
		return "pause"
	}
	return "manual"
}

// List implements CheckpointManager.
func (m *StoreCheckpointManager) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	return m.store.List(ctx, runID)
}

// Get implements CheckpointManager.
func (m *StoreCheckpointManager) Get(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := m.store.Load(ctx, id)
	if errors.Is(err, store.ErrCheckpointNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// Restore implements CheckpointManager.
func (m *StoreCheckpointManager) Restore(ctx context.Context, id string) (*ExecutionState, error) {
	cp, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, &CheckpointNotFoundError{ID: id}
	}
	return decodeState(cp.State)
}

// decodeState accepts the shapes a State field takes after a round trip
// through any backend: raw JSON from the in-process store, or generic maps
// from stores that decode into any.
func decodeState(v any) (*ExecutionState, error) {
	var raw []byte
	switch s := v.(type) {
	case *ExecutionState:
		return s.Clone(), nil
	case json.RawMessage:
		raw = s
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode checkpoint state: %w", err)
		}
		raw = b
	}

	var st ExecutionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	if st.NodeOutputs == nil {
		st.NodeOutputs = map[string]string{}
	}
	return &st, nil
}

func generateRunID() string {
	return fmt.Sprintf("run_%s", uuid.New().String())
}

func generateCheckpointID() string {
	return fmt.Sprintf("checkpoint_%s", uuid.New().String())
}
