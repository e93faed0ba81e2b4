package store

import (
	"errors"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func (mysqlDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS setup (
			id TINYINT PRIMARY KEY,
			auto_sync_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			sync_frequency_hours INT NOT NULL DEFAULT 24,
			last_auto_sync DATETIME(6) NULL,
			last_sync_duration_seconds INT NOT NULL DEFAULT 0,
			scheduled_job_id VARCHAR(64) NULL,
			authority_url VARCHAR(255) NOT NULL,
			api_base_url VARCHAR(255) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			workspace_id CHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(64) NOT NULL DEFAULT '',
			state VARCHAR(64) NOT NULL DEFAULT '',
			is_on_dedicated_capacity BOOLEAN NOT NULL DEFAULT FALSE,
			last_synchronized DATETIME(6) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS datasets (
			workspace_id CHAR(36) NOT NULL,
			dataset_id CHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			configured_by VARCHAR(255) NOT NULL DEFAULT '',
			web_url VARCHAR(1024) NOT NULL DEFAULT '',
			is_refreshable BOOLEAN NOT NULL DEFAULT FALSE,
			last_refresh DATETIME(6) NULL,
			last_refresh_status VARCHAR(64) NOT NULL DEFAULT '',
			last_refresh_duration_minutes DOUBLE NOT NULL DEFAULT 0,
			average_refresh_duration_minutes DOUBLE NOT NULL DEFAULT 0,
			refresh_count INT NOT NULL DEFAULT 0,
			last_synchronized DATETIME(6) NULL,
			PRIMARY KEY (workspace_id, dataset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_history (
			refresh_id VARCHAR(128) PRIMARY KEY,
			dataset_id CHAR(36) NOT NULL,
			dataset_name VARCHAR(255) NOT NULL DEFAULT '',
			workspace_id CHAR(36) NOT NULL,
			workspace_name VARCHAR(255) NOT NULL DEFAULT '',
			start_time DATETIME(6) NOT NULL,
			end_time DATETIME(6) NULL,
			status VARCHAR(32) NOT NULL,
			refresh_type VARCHAR(64) NOT NULL DEFAULT '',
			error_message VARCHAR(2048) NULL,
			duration_minutes DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_refresh_history_dataset (dataset_id, start_time)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id CHAR(36) PRIMARY KEY,
			trigger_type VARCHAR(16) NOT NULL,
			started_at DATETIME(6) NOT NULL,
			completed_at DATETIME(6) NULL,
			status VARCHAR(16) NOT NULL,
			workspaces_synced INT NOT NULL DEFAULT 0,
			datasets_synced INT NOT NULL DEFAULT 0,
			refreshes_appended INT NOT NULL DEFAULT 0,
			elements_skipped INT NOT NULL DEFAULT 0,
			error_message TEXT NULL,
			INDEX idx_sync_runs_started (started_at)
		)`,
	}
}

func (mysqlDialect) upsertSetupSQL() string {
	return `INSERT INTO setup (id, auto_sync_enabled, sync_frequency_hours, last_auto_sync, last_sync_duration_seconds,
			scheduled_job_id, authority_url, api_base_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			auto_sync_enabled = VALUES(auto_sync_enabled),
			sync_frequency_hours = VALUES(sync_frequency_hours),
			last_auto_sync = VALUES(last_auto_sync),
			last_sync_duration_seconds = VALUES(last_sync_duration_seconds),
			scheduled_job_id = VALUES(scheduled_job_id),
			authority_url = VALUES(authority_url),
			api_base_url = VALUES(api_base_url),
			updated_at = VALUES(updated_at)`
}

func (mysqlDialect) upsertWorkspaceSQL() string {
	return `INSERT INTO workspaces (workspace_id, name, type, state, is_on_dedicated_capacity, last_synchronized)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			type = VALUES(type),
			state = VALUES(state),
			is_on_dedicated_capacity = VALUES(is_on_dedicated_capacity),
			last_synchronized = VALUES(last_synchronized)`
}

func (mysqlDialect) upsertDatasetSQL() string {
	return `INSERT INTO datasets (workspace_id, dataset_id, name, configured_by, web_url, is_refreshable, last_synchronized)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			configured_by = VALUES(configured_by),
			web_url = VALUES(web_url),
			is_refreshable = VALUES(is_refreshable),
			last_synchronized = VALUES(last_synchronized)`
}

// Plain INSERT: a duplicate refresh_id fails with ER_DUP_ENTRY, which
// RecordRefreshPage treats as already recorded.
func (mysqlDialect) insertRefreshSQL() string {
	return `INSERT INTO refresh_history (refresh_id, dataset_id, dataset_name, workspace_id, workspace_name,
			start_time, end_time, status, refresh_type, error_message, duration_minutes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func (mysqlDialect) isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == gomysql.ER_DUP_ENTRY
}
