package store

type sqliteDialect struct{}

func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS setup (
			id INTEGER PRIMARY KEY,
			auto_sync_enabled BOOLEAN NOT NULL DEFAULT 0,
			sync_frequency_hours INTEGER NOT NULL DEFAULT 24,
			last_auto_sync TIMESTAMP NULL,
			last_sync_duration_seconds INTEGER NOT NULL DEFAULT 0,
			scheduled_job_id TEXT NULL,
			authority_url TEXT NOT NULL,
			api_base_url TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			workspace_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			is_on_dedicated_capacity BOOLEAN NOT NULL DEFAULT 0,
			last_synchronized TIMESTAMP NULL
		);`,
		`CREATE TABLE IF NOT EXISTS datasets (
			workspace_id TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			name TEXT NOT NULL,
			configured_by TEXT NOT NULL DEFAULT '',
			web_url TEXT NOT NULL DEFAULT '',
			is_refreshable BOOLEAN NOT NULL DEFAULT 0,
			last_refresh TIMESTAMP NULL,
			last_refresh_status TEXT NOT NULL DEFAULT '',
			last_refresh_duration_minutes REAL NOT NULL DEFAULT 0,
			average_refresh_duration_minutes REAL NOT NULL DEFAULT 0,
			refresh_count INTEGER NOT NULL DEFAULT 0,
			last_synchronized TIMESTAMP NULL,
			PRIMARY KEY (workspace_id, dataset_id)
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_history (
			refresh_id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL,
			dataset_name TEXT NOT NULL DEFAULT '',
			workspace_id TEXT NOT NULL,
			workspace_name TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NULL,
			status TEXT NOT NULL,
			refresh_type TEXT NOT NULL DEFAULT '',
			error_message TEXT NULL,
			duration_minutes REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_history_dataset ON refresh_history(dataset_id, start_time);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			trigger_type TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NULL,
			status TEXT NOT NULL,
			workspaces_synced INTEGER NOT NULL DEFAULT 0,
			datasets_synced INTEGER NOT NULL DEFAULT 0,
			refreshes_appended INTEGER NOT NULL DEFAULT 0,
			elements_skipped INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);`,
	}
}

func (sqliteDialect) upsertSetupSQL() string {
	return `INSERT INTO setup (id, auto_sync_enabled, sync_frequency_hours, last_auto_sync, last_sync_duration_seconds,
			scheduled_job_id, authority_url, api_base_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			auto_sync_enabled = excluded.auto_sync_enabled,
			sync_frequency_hours = excluded.sync_frequency_hours,
			last_auto_sync = excluded.last_auto_sync,
			last_sync_duration_seconds = excluded.last_sync_duration_seconds,
			scheduled_job_id = excluded.scheduled_job_id,
			authority_url = excluded.authority_url,
			api_base_url = excluded.api_base_url,
			updated_at = excluded.updated_at`
}

func (sqliteDialect) upsertWorkspaceSQL() string {
	return `INSERT INTO workspaces (workspace_id, name, type, state, is_on_dedicated_capacity, last_synchronized)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(workspace_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			state = excluded.state,
			is_on_dedicated_capacity = excluded.is_on_dedicated_capacity,
			last_synchronized = excluded.last_synchronized`
}

func (sqliteDialect) upsertDatasetSQL() string {
	return `INSERT INTO datasets (workspace_id, dataset_id, name, configured_by, web_url, is_refreshable, last_synchronized)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(workspace_id, dataset_id) DO UPDATE SET
			name = excluded.name,
			configured_by = excluded.configured_by,
			web_url = excluded.web_url,
			is_refreshable = excluded.is_refreshable,
			last_synchronized = excluded.last_synchronized`
}

func (sqliteDialect) insertRefreshSQL() string {
	return `INSERT INTO refresh_history (refresh_id, dataset_id, dataset_name, workspace_id, workspace_name,
			start_time, end_time, status, refresh_type, error_message, duration_minutes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(refresh_id) DO NOTHING`
}

// Conflicts are absorbed by ON CONFLICT DO NOTHING.
func (sqliteDialect) isDuplicate(error) bool {
	return false
}
