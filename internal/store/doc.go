// Package store provides a SQLite-backed journal of load activity.
//
// The journal is append-only:
//   - Loads: one row per dispatched load, updated once when it ends
//   - Merges: one row per cache merge, keyed by (load_id, seq)
//   - Merge records: the canonical JSON of every record a merge wrote
//
// Writes are idempotent. Replaying a BeginLoad or RecordMerge for an id
// that already exists is a no-op.
//
// Reads are ordered deterministically: loads and merges by insertion
// order, records by key COLLATE BINARY.
//
// Every connection runs in WAL mode with synchronous=NORMAL, a five second
// busy timeout and foreign keys enforced. The schema version lives in
// PRAGMA user_version and is raised one migration at a time on Open.
package store
