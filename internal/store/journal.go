package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loadkit/internal/cache"
	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/record"
)

// ErrUnknownLoad is returned when ending a load that was never begun.
var ErrUnknownLoad = errors.New("store: unknown load")

var _ engine.Journal = (*Store)(nil)

// BeginLoad inserts a running load.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) BeginLoad(ctx context.Context, info engine.LoadInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loads
		(id, collection, loader, convention, targets, adhoc, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		info.ID,
		info.Collection,
		info.Loader,
		info.Convention.String(),
		info.Targets,
		info.Adhoc,
		string(engine.LoadRunning),
		formatTime(info.Started),
	)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	return nil
}

// RecordMerge inserts a merge and the records it wrote.
//
// Uses ON CONFLICT(load_id, seq) DO NOTHING for idempotency. If the merge
// already exists its records are left untouched.
//
// Note: The load referenced by loadID must exist (foreign key constraint).
func (s *Store) RecordMerge(ctx context.Context, loadID string, res cache.MergeResult, set record.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record merge: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO merges
		(load_id, seq, collection, added, updated, unchanged)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(load_id, seq) DO NOTHING
	`,
		loadID,
		res.Seq,
		res.Collection,
		res.Added,
		res.Updated,
		res.Unchanged,
	)
	if err != nil {
		return fmt.Errorf("record merge: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record merge: rows affected: %w", err)
	}
	if affected == 0 {
		return tx.Commit()
	}

	mergeID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("record merge: last insert id: %w", err)
	}

	for _, key := range set.Keys() {
		body, hash, err := encodeRecord(set[key])
		if err != nil {
			return fmt.Errorf("record merge: %q: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO merge_records (merge_id, key, hash, body)
			VALUES (?, ?, ?, ?)
		`, mergeID, key, hash, body)
		if err != nil {
			return fmt.Errorf("record merge: %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record merge: commit: %w", err)
	}
	return nil
}

// EndLoad stores the outcome of a running load. Ending a load twice keeps
// the first outcome.
func (s *Store) EndLoad(ctx context.Context, loadID string, outcome engine.LoadOutcome) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE loads
		SET status = ?, records = ?, merges = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`,
		string(outcome.Status),
		outcome.Records,
		outcome.Merges,
		outcome.Err,
		formatTime(outcome.Finished),
		loadID,
		string(engine.LoadRunning),
	)
	if err != nil {
		return fmt.Errorf("end load: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("end load: rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM loads WHERE id = ?`, loadID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("end load %q: %w", loadID, ErrUnknownLoad)
	}
	if err != nil {
		return fmt.Errorf("end load: %w", err)
	}
	return nil
}
