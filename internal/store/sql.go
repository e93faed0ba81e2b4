package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pbi-sync-service/internal/database"
)

// dialect captures the statements that differ between MySQL and SQLite.
type dialect interface {
	schema() []string
	upsertSetupSQL() string
	upsertWorkspaceSQL() string
	upsertDatasetSQL() string
	insertRefreshSQL() string
	// isDuplicate reports whether err is a primary key violation.
	isDuplicate(err error) bool
}

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db      *database.Database
	dialect dialect
}

// New returns the store matching the database driver and applies its schema.
func New(ctx context.Context, db *database.Database) (*SQLStore, error) {
	var d dialect
	switch db.Driver {
	case database.DriverMySQL:
		d = mysqlDialect{}
	case database.DriverSQLite:
		d = sqliteDialect{}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", db.Driver)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema apply failed: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) GetSetup(ctx context.Context) (*Setup, error) {
	query := `SELECT auto_sync_enabled, sync_frequency_hours, last_auto_sync, last_sync_duration_seconds,
			  scheduled_job_id, authority_url, api_base_url, updated_at
			  FROM setup WHERE id = ?`

	var st Setup
	err := s.db.DB.QueryRowContext(ctx, query, SetupID).Scan(
		&st.AutoSyncEnabled,
		&st.SyncFrequencyHours,
		&st.LastAutoSync,
		&st.LastSyncDurationSeconds,
		&st.ScheduledJobID,
		&st.AuthorityURL,
		&st.APIBaseURL,
		&st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLStore) SaveSetup(ctx context.Context, st *Setup) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.DB.ExecContext(ctx, s.dialect.upsertSetupSQL(),
		SetupID,
		st.AutoSyncEnabled,
		st.SyncFrequencyHours,
		utcNull(st.LastAutoSync),
		st.LastSyncDurationSeconds,
		st.ScheduledJobID,
		st.AuthorityURL,
		st.APIBaseURL,
		st.UpdatedAt,
	)
	return err
}

func (s *SQLStore) RecordSyncAttempt(ctx context.Context, lastAutoSync sql.NullTime, durationSeconds int) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE setup SET last_sync_duration_seconds = ?, last_auto_sync = COALESCE(?, last_auto_sync), updated_at = ? WHERE id = ?`,
		durationSeconds,
		utcNull(lastAutoSync),
		time.Now().UTC(),
		SetupID,
	)
	return err
}

func (s *SQLStore) DeleteSetup(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM setup WHERE id = ?`, SetupID)
	return err
}

func (s *SQLStore) UpsertWorkspace(ctx context.Context, ws *Workspace) error {
	_, err := s.db.DB.ExecContext(ctx, s.dialect.upsertWorkspaceSQL(),
		ws.WorkspaceID,
		ws.Name,
		ws.Type,
		ws.State,
		ws.IsOnDedicatedCapacity,
		utcNull(ws.LastSynchronized),
	)
	return err
}

const workspaceColumns = `workspace_id, name, type, state, is_on_dedicated_capacity, last_synchronized`

func scanWorkspace(row interface{ Scan(...any) error }) (*Workspace, error) {
	var ws Workspace
	err := row.Scan(
		&ws.WorkspaceID,
		&ws.Name,
		&ws.Type,
		&ws.State,
		&ws.IsOnDedicatedCapacity,
		&ws.LastSynchronized,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *SQLStore) GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error) {
	row := s.db.DB.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE workspace_id = ?`, workspaceID)
	ws, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ws, err
}

func (s *SQLStore) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY name, workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// UpsertDataset inserts the dataset or overwrites its listing fields. The
// refresh aggregate columns are only written by RecordRefreshPage.
func (s *SQLStore) UpsertDataset(ctx context.Context, ds *Dataset) error {
	_, err := s.db.DB.ExecContext(ctx, s.dialect.upsertDatasetSQL(),
		ds.WorkspaceID,
		ds.DatasetID,
		ds.Name,
		ds.ConfiguredBy,
		ds.WebURL,
		ds.IsRefreshable,
		utcNull(ds.LastSynchronized),
	)
	return err
}

const datasetColumns = `workspace_id, dataset_id, name, configured_by, web_url, is_refreshable,
	last_refresh, last_refresh_status, last_refresh_duration_minutes,
	average_refresh_duration_minutes, refresh_count, last_synchronized`

func scanDataset(row interface{ Scan(...any) error }) (*Dataset, error) {
	var ds Dataset
	err := row.Scan(
		&ds.WorkspaceID,
		&ds.DatasetID,
		&ds.Name,
		&ds.ConfiguredBy,
		&ds.WebURL,
		&ds.IsRefreshable,
		&ds.LastRefresh,
		&ds.LastRefreshStatus,
		&ds.LastRefreshDurationMinutes,
		&ds.AverageRefreshDurationMinutes,
		&ds.RefreshCount,
		&ds.LastSynchronized,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (s *SQLStore) GetDataset(ctx context.Context, workspaceID, datasetID string) (*Dataset, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE workspace_id = ? AND dataset_id = ?`,
		workspaceID, datasetID)
	ds, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ds, err
}

// ListDatasets returns the datasets of one workspace, or of all workspaces
// when workspaceID is empty.
func (s *SQLStore) ListDatasets(ctx context.Context, workspaceID string) ([]*Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY workspace_id, name, dataset_id`

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (s *SQLStore) RefreshExists(ctx context.Context, refreshID string) (bool, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM refresh_history WHERE refresh_id = ?`, refreshID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordRefreshPage appends the entries that are not yet in the ledger and
// replaces the dataset's refresh aggregates, in one transaction. It returns
// the number of entries actually appended.
func (s *SQLStore) RecordRefreshPage(ctx context.Context, workspaceID, datasetID string, entries []*RefreshHistoryEntry, stats RefreshStats) (int, error) {
	appended := 0
	err := s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		appended = 0
		now := time.Now().UTC()
		for _, e := range entries {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			res, err := tx.ExecContext(ctx, s.dialect.insertRefreshSQL(),
				e.RefreshID,
				e.DatasetID,
				e.DatasetName,
				e.WorkspaceID,
				e.WorkspaceName,
				e.StartTime.UTC(),
				utcNull(e.EndTime),
				string(e.Status),
				e.RefreshType,
				e.ErrorMessage,
				e.DurationMinutes,
				e.CreatedAt,
			)
			if err != nil {
				if s.dialect.isDuplicate(err) {
					continue
				}
				return fmt.Errorf("append refresh %s: %w", e.RefreshID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				appended++
			}
		}

		if stats.Latest != nil {
			_, err := tx.ExecContext(ctx, `UPDATE datasets SET last_refresh = ?, last_refresh_status = ?, last_refresh_duration_minutes = ?
				WHERE workspace_id = ? AND dataset_id = ?`,
				stats.Latest.At.UTC(),
				string(stats.Latest.Status),
				stats.Latest.DurationMinutes,
				workspaceID, datasetID,
			)
			if err != nil {
				return fmt.Errorf("update latest refresh: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `UPDATE datasets SET average_refresh_duration_minutes = ?, refresh_count = ?
			WHERE workspace_id = ? AND dataset_id = ?`,
			stats.AverageDurationMinutes,
			stats.RefreshCount,
			workspaceID, datasetID,
		)
		if err != nil {
			return fmt.Errorf("update refresh aggregates: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return appended, nil
}

// ListRefreshes returns ledger entries for a dataset, newest first. A
// non-positive limit returns every entry.
func (s *SQLStore) ListRefreshes(ctx context.Context, datasetID string, limit int) ([]*RefreshHistoryEntry, error) {
	query := `SELECT refresh_id, dataset_id, dataset_name, workspace_id, workspace_name, start_time, end_time,
			  status, refresh_type, error_message, duration_minutes, created_at
			  FROM refresh_history WHERE dataset_id = ? ORDER BY start_time DESC, refresh_id`
	args := []any{datasetID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RefreshHistoryEntry
	for rows.Next() {
		var e RefreshHistoryEntry
		var status string
		err := rows.Scan(
			&e.RefreshID,
			&e.DatasetID,
			&e.DatasetName,
			&e.WorkspaceID,
			&e.WorkspaceName,
			&e.StartTime,
			&e.EndTime,
			&status,
			&e.RefreshType,
			&e.ErrorMessage,
			&e.DurationMinutes,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Status = RefreshStatus(status)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `INSERT INTO sync_runs (id, trigger_type, started_at, completed_at, status, workspaces_synced,
			  datasets_synced, refreshes_appended, elements_skipped, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB.ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		run.StartedAt.UTC(),
		utcNull(run.CompletedAt),
		string(run.Status),
		run.WorkspacesSynced,
		run.DatasetsSynced,
		run.RefreshesAppended,
		run.ElementsSkipped,
		run.ErrorMessage,
	)
	return err
}

func (s *SQLStore) UpdateSyncRun(ctx context.Context, run *SyncRun) error {
	query := `UPDATE sync_runs SET completed_at = ?, status = ?, workspaces_synced = ?, datasets_synced = ?,
			  refreshes_appended = ?, elements_skipped = ?, error_message = ? WHERE id = ?`

	_, err := s.db.DB.ExecContext(ctx, query,
		utcNull(run.CompletedAt),
		string(run.Status),
		run.WorkspacesSynced,
		run.DatasetsSynced,
		run.RefreshesAppended,
		run.ElementsSkipped,
		run.ErrorMessage,
		run.ID,
	)
	return err
}

func (s *SQLStore) ListSyncRuns(ctx context.Context, limit, offset int) ([]*SyncRun, error) {
	query := `SELECT id, trigger_type, started_at, completed_at, status, workspaces_synced, datasets_synced,
			  refreshes_appended, elements_skipped, error_message
			  FROM sync_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		var status string
		err := rows.Scan(
			&r.ID,
			&r.Trigger,
			&r.StartedAt,
			&r.CompletedAt,
			&status,
			&r.WorkspacesSynced,
			&r.DatasetsSynced,
			&r.RefreshesAppended,
			&r.ElementsSkipped,
			&r.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		r.Status = SyncRunStatus(status)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func utcNull(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: t.Time.UTC(), Valid: true}
}
