// Package file stores checkpoints as JSON documents in a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

const fileExt = ".json"

// FileCheckpointStore writes one <id>.json file per checkpoint.
type FileCheckpointStore struct {
	dir string
	mu  sync.RWMutex
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// NewFileCheckpointStore creates the directory if needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (s *FileCheckpointStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid checkpoint id %q", id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

// Save stores a checkpoint. The file is written to a temp name first and
// renamed into place.
func (s *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	p, err := s.path(checkpoint.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	p, err := s.path(checkpointID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readCheckpoint(p, checkpointID)
}

func readCheckpoint(p, id string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, id)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// List scans the directory and returns the checkpoints of one execution.
func (s *FileCheckpointStore) List(_ context.Context, executionID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	result := make([]*store.Checkpoint, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		cp, err := readCheckpoint(filepath.Join(s.dir, name), strings.TrimSuffix(name, fileExt))
		if err != nil {
			// unreadable files are not ours to fail on
			continue
		}
		if cp.RunID == executionID {
			result = append(result, cp)
		}
	}
	store.SortByVersion(result)
	return result, nil
}

// Delete removes a checkpoint. Unknown ids are ignored.
func (s *FileCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	p, err := s.path(checkpointID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints for an execution
func (s *FileCheckpointStore) Clear(ctx context.Context, executionID string) error {
	cps, err := s.List(ctx, executionID)
	if err != nil {
		return err
	}
	for _, cp := range cps {
		if err := s.Delete(ctx, cp.ID); err != nil {
			return err
		}
	}
	return nil
}
