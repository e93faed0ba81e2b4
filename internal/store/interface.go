package store

import (
	"context"
	"database/sql"
)

// Store persists the setup record, the reconciled entities and the refresh
// ledger. Getters return (nil, nil) when the row does not exist.
type Store interface {
	// Setup
	GetSetup(ctx context.Context) (*Setup, error)
	SaveSetup(ctx context.Context, setup *Setup) error
	// RecordSyncAttempt touches only the sync outcome columns. An invalid
	// lastAutoSync keeps the stored value.
	RecordSyncAttempt(ctx context.Context, lastAutoSync sql.NullTime, durationSeconds int) error
	DeleteSetup(ctx context.Context) error

	// Workspaces
	UpsertWorkspace(ctx context.Context, ws *Workspace) error
	GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)

	// Datasets
	UpsertDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, workspaceID, datasetID string) (*Dataset, error)
	ListDatasets(ctx context.Context, workspaceID string) ([]*Dataset, error)

	// Refresh ledger
	RefreshExists(ctx context.Context, refreshID string) (bool, error)
	RecordRefreshPage(ctx context.Context, workspaceID, datasetID string, entries []*RefreshHistoryEntry, stats RefreshStats) (int, error)
	ListRefreshes(ctx context.Context, datasetID string, limit int) ([]*RefreshHistoryEntry, error)

	// Sync runs
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	UpdateSyncRun(ctx context.Context, run *SyncRun) error
	ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error)

	// General
	Close() error
}
