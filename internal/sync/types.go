package sync

import (
	"errors"
	"time"
)

// Trigger identifies what started a sweep.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerForced    Trigger = "forced"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

var ErrSyncInProgress = errors.New("sync is already running")

// ListingResult summarises one listing reconciliation.
type ListingResult struct {
	Upserted int
	Skipped  int
}

// HistoryResult summarises one refresh-history ingestion.
type HistoryResult struct {
	Appended        int
	AlreadyRecorded int
	Skipped         int
	RefreshCount    int
	AverageMinutes  float64
}

// run carries the bookkeeping of a single sweep through the call chain.
type run struct {
	id                string
	trigger           Trigger
	startedAt         time.Time
	workspacesSynced  int
	datasetsSynced    int
	refreshesAppended int
	elementsSkipped   int
	errs              []error
}

func (r *run) fail(err error) {
	r.errs = append(r.errs, err)
}

func (r *run) err() error {
	return errors.Join(r.errs...)
}
