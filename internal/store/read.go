package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Load is one journaled load.
type Load struct {
	Seq        int64
	ID         string
	Collection string
	Loader     string
	Convention loader.Convention
	Targets    int
	Adhoc      int
	Status     engine.LoadStatus
	Records    int
	Merges     int
	Err        string
	Started    time.Time
	// Finished is zero while the load is running.
	Finished time.Time
}

// Merge is one journaled cache merge.
type Merge struct {
	ID         int64
	LoadID     string
	Seq        int64
	Collection string
	Added      int
	Updated    int
	Unchanged  int
}

// RecordVersion is one write of a record key.
type RecordVersion struct {
	MergeID int64
	LoadID  string
	Key     string
	Hash    string
	Record  record.Record
}

// LoadFilter narrows ReadLoads. Zero fields match everything.
type LoadFilter struct {
	Collection string
	Status     engine.LoadStatus
	// Limit keeps only the most recent loads.
	Limit int
}

const loadColumns = `seq, id, collection, loader, convention, targets, adhoc, status,
	records, merges, error, started_at, finished_at`

// ReadLoad retrieves a single load by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadLoad(ctx context.Context, id string) (Load, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loadColumns+` FROM loads WHERE id = ?`, id)
	return scanLoad(row)
}

// ReadLoads returns loads matching filter, oldest first.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadLoads(ctx context.Context, filter LoadFilter) ([]Load, error) {
	var (
		where []string
		args  []any
	)
	if filter.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, filter.Collection)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + loadColumns + ` FROM loads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	query = `SELECT * FROM (` + query + `) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query loads: %w", err)
	}
	defer rows.Close()

	loads := []Load{}
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loads: %w", err)
	}
	return loads, nil
}

// ReadMerges returns the merges of a load in the order they were applied.
func (s *Store) ReadMerges(ctx context.Context, loadID string) ([]Merge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, load_id, seq, collection, added, updated, unchanged
		FROM merges
		WHERE load_id = ?
		ORDER BY id ASC
	`, loadID)
	if err != nil {
		return nil, fmt.Errorf("query merges: %w", err)
	}
	defer rows.Close()

	merges := []Merge{}
	for rows.Next() {
		var m Merge
		if err := rows.Scan(&m.ID, &m.LoadID, &m.Seq, &m.Collection, &m.Added, &m.Updated, &m.Unchanged); err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		merges = append(merges, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merges: %w", err)
	}
	return merges, nil
}

// ReadMergeRecords returns the records written by one merge.
func (s *Store) ReadMergeRecords(ctx context.Context, mergeID int64) (record.Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, body FROM merge_records
		WHERE merge_id = ?
		ORDER BY key COLLATE BINARY ASC
	`, mergeID)
	if err != nil {
		return nil, fmt.Errorf("query merge records: %w", err)
	}
	defer rows.Close()
	return scanSet(rows)
}

// ReadKeyHistory returns every write of key in collection, oldest first.
func (s *Store) ReadKeyHistory(ctx context.Context, collection, key string) ([]RecordVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.merge_id, m.load_id, r.key, r.hash, r.body
		FROM merge_records r
		JOIN merges m ON r.merge_id = m.id
		WHERE m.collection = ? AND r.key = ?
		ORDER BY r.merge_id ASC
	`, collection, key)
	if err != nil {
		return nil, fmt.Errorf("query key history: %w", err)
	}
	defer rows.Close()

	versions := []RecordVersion{}
	for rows.Next() {
		var (
			v    RecordVersion
			body string
		)
		if err := rows.Scan(&v.MergeID, &v.LoadID, &v.Key, &v.Hash, &body); err != nil {
			return nil, fmt.Errorf("scan record version: %w", err)
		}
		if v.Record, err = decodeRecord(body); err != nil {
			return nil, fmt.Errorf("key %q: %w", v.Key, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key history: %w", err)
	}
	return versions, nil
}

// ReadLatest rebuilds a collection from the journal: every key mapped to
// its most recent write.
func (s *Store) ReadLatest(ctx context.Context, collection string) (record.Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.key, r.body
		FROM merge_records r
		JOIN merges m ON r.merge_id = m.id
		WHERE m.collection = ?
		ORDER BY r.merge_id ASC, r.key COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()
	return scanSet(rows)
}

// Collections returns the name of every collection with a journaled load.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT collection FROM loads ORDER BY collection COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return names, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(row scanner) (Load, error) {
	var (
		l        Load
		conv     string
		status   string
		started  string
		finished sql.NullString
	)
	err := row.Scan(&l.Seq, &l.ID, &l.Collection, &l.Loader, &conv, &l.Targets, &l.Adhoc,
		&status, &l.Records, &l.Merges, &l.Err, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Load{}, err
		}
		return Load{}, fmt.Errorf("scan load: %w", err)
	}

	if l.Convention, err = loader.ParseConvention(conv); err != nil {
		return Load{}, fmt.Errorf("load %s: %w", l.ID, err)
	}
	l.Status = engine.LoadStatus(status)
	if l.Started, err = parseTime(started); err != nil {
		return Load{}, fmt.Errorf("load %s: %w", l.ID, err)
	}
	if finished.Valid {
		if l.Finished, err = parseTime(finished.String); err != nil {
			return Load{}, fmt.Errorf("load %s: %w", l.ID, err)
		}
	}
	return l, nil
}

// scanSet reads (key, body) rows. Later rows overwrite earlier ones.
func scanSet(rows *sql.Rows) (record.Set, error) {
	set := record.Set{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := decodeRecord(body)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		set[key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return set, nil
}
