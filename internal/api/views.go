package api

import (
	"database/sql"
	"time"

	"pbi-sync-service/internal/store"
)

type syncStatusView struct {
	Status                  string     `json:"status"`
	AutoSyncEnabled         bool       `json:"auto_sync_enabled"`
	FrequencyHours          int        `json:"frequency_hours"`
	LastAutoSync            *time.Time `json:"last_auto_sync"`
	LastSyncDurationSeconds int        `json:"last_sync_duration_seconds"`
	NextDue                 *time.Time `json:"next_due,omitempty"`
}

type setupView struct {
	AutoSyncEnabled         bool       `json:"auto_sync_enabled"`
	SyncFrequencyHours      int        `json:"sync_frequency_hours"`
	LastAutoSync            *time.Time `json:"last_auto_sync"`
	LastSyncDurationSeconds int        `json:"last_sync_duration_seconds"`
	ScheduledJobID          string     `json:"scheduled_job_id,omitempty"`
	AuthorityURL            string     `json:"authority_url"`
	APIBaseURL              string     `json:"api_base_url"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func newSetupView(st *store.Setup) setupView {
	return setupView{
		AutoSyncEnabled:         st.AutoSyncEnabled,
		SyncFrequencyHours:      st.SyncFrequencyHours,
		LastAutoSync:            timePtr(st.LastAutoSync),
		LastSyncDurationSeconds: st.LastSyncDurationSeconds,
		ScheduledJobID:          st.ScheduledJobID.String,
		AuthorityURL:            st.AuthorityURL,
		APIBaseURL:              st.APIBaseURL,
		UpdatedAt:               st.UpdatedAt,
	}
}

type workspaceView struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Type                  string     `json:"type"`
	State                 string     `json:"state"`
	IsOnDedicatedCapacity bool       `json:"is_on_dedicated_capacity"`
	LastSynchronized      *time.Time `json:"last_synchronized"`
}

func newWorkspaceView(ws *store.Workspace) workspaceView {
	return workspaceView{
		ID:                    ws.WorkspaceID,
		Name:                  ws.Name,
		Type:                  ws.Type,
		State:                 ws.State,
		IsOnDedicatedCapacity: ws.IsOnDedicatedCapacity,
		LastSynchronized:      timePtr(ws.LastSynchronized),
	}
}

type datasetView struct {
	WorkspaceID                   string     `json:"workspace_id"`
	ID                            string     `json:"id"`
	Name                          string     `json:"name"`
	ConfiguredBy                  string     `json:"configured_by"`
	WebURL                        string     `json:"web_url"`
	IsRefreshable                 bool       `json:"is_refreshable"`
	LastRefresh                   *time.Time `json:"last_refresh"`
	LastRefreshStatus             string     `json:"last_refresh_status"`
	LastRefreshDurationMinutes    float64    `json:"last_refresh_duration_minutes"`
	AverageRefreshDurationMinutes float64    `json:"average_refresh_duration_minutes"`
	RefreshCount                  int        `json:"refresh_count"`
	LastSynchronized              *time.Time `json:"last_synchronized"`
}

func newDatasetView(ds *store.Dataset) datasetView {
	return datasetView{
		WorkspaceID:                   ds.WorkspaceID,
		ID:                            ds.DatasetID,
		Name:                          ds.Name,
		ConfiguredBy:                  ds.ConfiguredBy,
		WebURL:                        ds.WebURL,
		IsRefreshable:                 ds.IsRefreshable,
		LastRefresh:                   timePtr(ds.LastRefresh),
		LastRefreshStatus:             ds.LastRefreshStatus,
		LastRefreshDurationMinutes:    ds.LastRefreshDurationMinutes,
		AverageRefreshDurationMinutes: ds.AverageRefreshDurationMinutes,
		RefreshCount:                  ds.RefreshCount,
		LastSynchronized:              timePtr(ds.LastSynchronized),
	}
}

type refreshView struct {
	ID              string     `json:"id"`
	DatasetID       string     `json:"dataset_id"`
	DatasetName     string     `json:"dataset_name"`
	WorkspaceID     string     `json:"workspace_id"`
	WorkspaceName   string     `json:"workspace_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Status          string     `json:"status"`
	RefreshType     string     `json:"refresh_type"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
}

func newRefreshView(e *store.RefreshHistoryEntry) refreshView {
	return refreshView{
		ID:              e.RefreshID,
		DatasetID:       e.DatasetID,
		DatasetName:     e.DatasetName,
		WorkspaceID:     e.WorkspaceID,
		WorkspaceName:   e.WorkspaceName,
		StartTime:       e.StartTime,
		EndTime:         timePtr(e.EndTime),
		Status:          string(e.Status),
		RefreshType:     e.RefreshType,
		ErrorMessage:    e.ErrorMessage.String,
		DurationMinutes: e.DurationMinutes,
	}
}

type syncRunView struct {
	ID                string     `json:"id"`
	Trigger           string     `json:"trigger"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	Status            string     `json:"status"`
	WorkspacesSynced  int        `json:"workspaces_synced"`
	DatasetsSynced    int        `json:"datasets_synced"`
	RefreshesAppended int        `json:"refreshes_appended"`
	ElementsSkipped   int        `json:"elements_skipped"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

func newSyncRunView(run *store.SyncRun) syncRunView {
	return syncRunView{
		ID:                run.ID,
		Trigger:           run.Trigger,
		StartedAt:         run.StartedAt,
		CompletedAt:       timePtr(run.CompletedAt),
		Status:            string(run.Status),
		WorkspacesSynced:  run.WorkspacesSynced,
		DatasetsSynced:    run.DatasetsSynced,
		RefreshesAppended: run.RefreshesAppended,
		ElementsSkipped:   run.ElementsSkipped,
		ErrorMessage:      run.ErrorMessage.String,
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
