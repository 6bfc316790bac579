// Package redis implements store.CheckpointStore on Redis. Each checkpoint is
// a hash whose fields mirror the checkpoint's columns, and every run keeps a
// sorted set of its checkpoint ids scored by version.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/store"
)

// Hash fields of a stored checkpoint.
const (
	fieldRunID        = "run_id"
	fieldNodeName     = "node_name"
	fieldLabel        = "label"
	fieldGraphVersion = "graph_version"
	fieldVersion      = "version"
	fieldTimestamp    = "timestamp"
	fieldState        = "state"
	fieldMetadata     = "metadata"
)

// RedisCheckpointStore implements store.CheckpointStore using Redis
type RedisCheckpointStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ store.CheckpointStore = (*RedisCheckpointStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "graph:"
	TTL      time.Duration // Expiration for checkpoints, default 0 (no expiration)
}

// NewRedisCheckpointStore creates a new Redis checkpoint store
func NewRedisCheckpointStore(opts RedisOptions) *RedisCheckpointStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCheckpointStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisCheckpointStoreWithClient reuses an existing client.
func NewRedisCheckpointStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "graph:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisCheckpointStore) checkpointKey(id string) string {
	return s.prefix + "checkpoint:" + id
}

func (s *RedisCheckpointStore) runKey(runID string) string {
	return s.prefix + "run:" + runID + ":checkpoints"
}

// Save writes the checkpoint hash and indexes it under its run.
func (s *RedisCheckpointStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	fields := map[string]any{
		fieldRunID:        cp.RunID,
		fieldNodeName:     cp.NodeName,
		fieldLabel:        cp.Label,
		fieldGraphVersion: cp.GraphVersion,
		fieldVersion:      cp.Version,
		fieldTimestamp:    cp.Timestamp.Format(time.RFC3339Nano),
		fieldState:        state,
	}
	if len(cp.Metadata) > 0 {
		meta, err := json.Marshal(cp.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		fields[fieldMetadata] = meta
	}

	key := s.checkpointKey(cp.ID)
	pipe := s.client.TxPipeline()
	// stale fields from an earlier save must not survive
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if cp.RunID != "" {
		idx := s.runKey(cp.RunID)
		pipe.ZAdd(ctx, idx, redis.Z{Score: float64(cp.Version), Member: cp.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, idx, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *RedisCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	fields, err := s.client.HGetAll(ctx, s.checkpointKey(checkpointID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	return decode(checkpointID, fields)
}

// List returns the run's checkpoints by ascending version. Ids whose hashes
// have expired are skipped.
func (s *RedisCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for run %s: %w", runID, err)
	}

	out := make([]*store.Checkpoint, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.checkpointKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		cp, err := decode(ids[i], fields)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	store.SortByVersion(out)
	return out, nil
}

// Delete removes a checkpoint. Unknown ids are ignored.
func (s *RedisCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	key := s.checkpointKey(checkpointID)
	runID, err := s.client.HGet(ctx, key, fieldRunID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if runID != "" {
		pipe.ZRem(ctx, s.runKey(runID), checkpointID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints of a run.
func (s *RedisCheckpointStore) Clear(ctx context.Context, runID string) error {
	idx := s.runKey(runID)
	ids, err := s.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get checkpoints for clearing: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.checkpointKey(id))
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

func decode(id string, fields map[string]string) (*store.Checkpoint, error) {
	cp := &store.Checkpoint{
		ID:       id,
		RunID:    fields[fieldRunID],
		NodeName: fields[fieldNodeName],
		Label:    fields[fieldLabel],
	}

	var err error
	if cp.GraphVersion, err = atoi(fields[fieldGraphVersion]); err != nil {
		return nil, fmt.Errorf("checkpoint %s: bad graph_version: %w", id, err)
	}
	if cp.Version, err = atoi(fields[fieldVersion]); err != nil {
		return nil, fmt.Errorf("checkpoint %s: bad version: %w", id, err)
	}
	if ts := fields[fieldTimestamp]; ts != "" {
		if cp.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("checkpoint %s: bad timestamp: %w", id, err)
		}
	}
	if err := json.Unmarshal([]byte(fields[fieldState]), &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if meta := fields[fieldMetadata]; meta != "" {
		if err := json.Unmarshal([]byte(meta), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return cp, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
