package store

import (
	"database/sql"
	"time"
)

// SetupID is the primary key of the singleton setup row.
const SetupID = 1

// Setup is the persisted configuration and last-run bookkeeping of the sync.
type Setup struct {
	AutoSyncEnabled         bool           `db:"auto_sync_enabled"`
	SyncFrequencyHours      int            `db:"sync_frequency_hours"`
	LastAutoSync            sql.NullTime   `db:"last_auto_sync"`
	LastSyncDurationSeconds int            `db:"last_sync_duration_seconds"`
	ScheduledJobID          sql.NullString `db:"scheduled_job_id"`
	AuthorityURL            string         `db:"authority_url"`
	APIBaseURL              string         `db:"api_base_url"`
	UpdatedAt               time.Time      `db:"updated_at"`
}

type Workspace struct {
	WorkspaceID           string       `db:"workspace_id"`
	Name                  string       `db:"name"`
	Type                  string       `db:"type"`
	State                 string       `db:"state"`
	IsOnDedicatedCapacity bool         `db:"is_on_dedicated_capacity"`
	LastSynchronized      sql.NullTime `db:"last_synchronized"`
}

type Dataset struct {
	WorkspaceID                   string       `db:"workspace_id"`
	DatasetID                     string       `db:"dataset_id"`
	Name                          string       `db:"name"`
	ConfiguredBy                  string       `db:"configured_by"`
	WebURL                        string       `db:"web_url"`
	IsRefreshable                 bool         `db:"is_refreshable"`
	LastRefresh                   sql.NullTime `db:"last_refresh"`
	LastRefreshStatus             string       `db:"last_refresh_status"`
	LastRefreshDurationMinutes    float64      `db:"last_refresh_duration_minutes"`
	AverageRefreshDurationMinutes float64      `db:"average_refresh_duration_minutes"`
	RefreshCount                  int          `db:"refresh_count"`
	LastSynchronized              sql.NullTime `db:"last_synchronized"`
}

type RefreshStatus string

const (
	RefreshCompleted  RefreshStatus = "Completed"
	RefreshFailed     RefreshStatus = "Failed"
	RefreshInProgress RefreshStatus = "InProgress"
	RefreshDisabled   RefreshStatus = "Disabled"
	RefreshNotStarted RefreshStatus = "NotStarted"
	RefreshUnknown    RefreshStatus = "Unknown"
)

// RefreshHistoryEntry is one write-once row of the refresh ledger. Dataset and
// workspace names are snapshots taken when the entry was appended.
type RefreshHistoryEntry struct {
	RefreshID       string         `db:"refresh_id"`
	DatasetID       string         `db:"dataset_id"`
	DatasetName     string         `db:"dataset_name"`
	WorkspaceID     string         `db:"workspace_id"`
	WorkspaceName   string         `db:"workspace_name"`
	StartTime       time.Time      `db:"start_time"`
	EndTime         sql.NullTime   `db:"end_time"`
	Status          RefreshStatus  `db:"status"`
	RefreshType     string         `db:"refresh_type"`
	ErrorMessage    sql.NullString `db:"error_message"`
	DurationMinutes float64        `db:"duration_minutes"`
	CreatedAt       time.Time      `db:"created_at"`
}

// LatestRefresh holds the summary fields overwritten from the newest refresh.
type LatestRefresh struct {
	At              time.Time
	Status          RefreshStatus
	DurationMinutes float64
}

// RefreshStats is the per-dataset aggregate recomputed from one history page.
type RefreshStats struct {
	Latest                 *LatestRefresh
	AverageDurationMinutes float64
	RefreshCount           int
}

type SyncRunStatus string

const (
	SyncRunRunning SyncRunStatus = "running"
	SyncRunSuccess SyncRunStatus = "success"
	SyncRunFailed  SyncRunStatus = "failed"
	// SyncRunSkipped marks an attempt that found another replica holding the sweep lock.
	SyncRunSkipped SyncRunStatus = "skipped"
)

// SyncRun records one orchestrator attempt, whatever its outcome.
type SyncRun struct {
	ID                string         `db:"id"`
	Trigger           string         `db:"trigger_type"`
	StartedAt         time.Time      `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
	Status            SyncRunStatus  `db:"status"`
	WorkspacesSynced  int            `db:"workspaces_synced"`
	DatasetsSynced    int            `db:"datasets_synced"`
	RefreshesAppended int            `db:"refreshes_appended"`
	ElementsSkipped   int            `db:"elements_skipped"`
	ErrorMessage      sql.NullString `db:"error_message"`
}
