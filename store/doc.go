// Package store defines the persistence contract for execution checkpoints.
//
// A Checkpoint is an immutable point-in-time snapshot of a graph run. The
// engine serialises its execution state into Checkpoint.State and tags the
// record with its run id, a human label and the graph version it was taken
// under. SQL backends keep those as columns and redis keeps them as hash
// fields, so they can be read without decoding State.
//
// Backends live in sub-packages:
//
//   - store/memory: process-local maps, the default
//   - store/file: one JSON document per checkpoint on disk
//   - store/sqlite: database/sql with mattn/go-sqlite3
//   - store/postgres: jackc/pgx connection pool
//   - store/redis: redis/go-redis hashes with a per-run sorted index
//
// Every backend wraps ErrCheckpointNotFound when asked for an unknown id, so
// callers can tell a missing checkpoint apart from a storage failure:
//
//	cp, err := s.Load(ctx, id)
//	if errors.Is(err, store.ErrCheckpointNotFound) {
//		// report "no such checkpoint"
//	}
package store
