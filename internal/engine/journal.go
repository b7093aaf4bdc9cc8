package engine

import (
	"context"
	"time"

	"github.com/roach88/loadkit/internal/cache"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// LoadStatus is the final state of a journaled load.
type LoadStatus string

const (
	LoadRunning   LoadStatus = "running"
	LoadSucceeded LoadStatus = "succeeded"
	LoadFailed    LoadStatus = "failed"
)

// LoadInfo describes a load when it starts.
type LoadInfo struct {
	ID         string
	Collection string
	Loader     string
	Convention loader.Convention
	Targets    int
	Adhoc      int
	Started    time.Time
}

// LoadOutcome describes a load when it ends.
type LoadOutcome struct {
	Status   LoadStatus
	Records  int
	Merges   int
	Err      string
	Finished time.Time
}

// Journal records load activity. A Journal failure is logged and never
// fails the load itself.
//
// Implemented by store.Store.
type Journal interface {
	BeginLoad(ctx context.Context, info LoadInfo) error
	RecordMerge(ctx context.Context, loadID string, res cache.MergeResult, set record.Set) error
	EndLoad(ctx context.Context, loadID string, outcome LoadOutcome) error
}

type nopJournal struct{}

func (nopJournal) BeginLoad(context.Context, LoadInfo) error { return nil }

func (nopJournal) RecordMerge(context.Context, string, cache.MergeResult, record.Set) error {
	return nil
}

func (nopJournal) EndLoad(context.Context, string, LoadOutcome) error { return nil }
