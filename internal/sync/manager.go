package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pbi-sync-service/internal/lock"
	"pbi-sync-service/internal/logger"
	"pbi-sync-service/internal/metrics"
	"pbi-sync-service/internal/store"
)

const sweepLockKey = "pbisync:sweep"

type ManagerOptions struct {
	Store      store.Store
	Reconciler *Reconciler
	// Locker guards sweeps across replicas. Defaults to lock.Local.
	Locker lock.Locker
	// Workspaces restricts the sweep. Empty means every stored workspace.
	Workspaces []string
	Now        func() time.Time
}

// Manager runs sweeps: workspaces, then the datasets of each workspace, then
// the refresh history of every refreshable dataset. Only one sweep runs at a
// time.
type Manager struct {
	store      store.Store
	reconciler *Reconciler
	locker     lock.Locker
	workspaces []string
	now        func() time.Time
	mu         sync.Mutex
	status     string
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Locker == nil {
		opts.Locker = lock.Local{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:      opts.Store,
		reconciler: opts.Reconciler,
		locker:     opts.Locker,
		workspaces: opts.Workspaces,
		now:        opts.Now,
		status:     StatusIdle,
	}
}

// RunAutoSync runs a sweep when auto-sync is enabled and due. It reports
// whether a sweep was attempted.
func (m *Manager) RunAutoSync(ctx context.Context) (bool, error) {
	setup, err := m.store.GetSetup(ctx)
	if err != nil {
		return false, fmt.Errorf("load setup: %w", err)
	}
	if setup == nil || !setup.AutoSyncEnabled {
		return false, nil
	}
	var last time.Time
	if setup.LastAutoSync.Valid {
		last = setup.LastAutoSync.Time
	}
	if !IsSyncDue(last, setup.SyncFrequencyHours, m.now()) {
		return false, nil
	}

	if err := m.execute(ctx, TriggerScheduled); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			return false, err
		}
		return true, err
	}
	return true, nil
}

// ForceSync runs a sweep regardless of the enabled flag and due time.
func (m *Manager) ForceSync(ctx context.Context) error {
	return m.execute(ctx, TriggerForced)
}

func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

func (m *Manager) execute(ctx context.Context, trigger Trigger) error {
	m.mu.Lock()
	if m.status == StatusRunning {
		m.mu.Unlock()
		return ErrSyncInProgress
	}
	m.status = StatusRunning
	m.mu.Unlock()
	defer m.setStatus(StatusIdle)

	r := &run{id: uuid.NewString(), trigger: trigger, startedAt: m.now()}

	release, err := m.locker.Acquire(ctx, sweepLockKey)
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Log.Info("Sweep lock held elsewhere, skipping", zap.String("trigger", string(trigger)))
		m.recordSkipped(ctx, r)
		return ErrSyncInProgress
	}
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer release()

	rec := &store.SyncRun{
		ID:        r.id,
		Trigger:   string(trigger),
		StartedAt: r.startedAt.UTC(),
		Status:    store.SyncRunRunning,
	}
	if err := m.store.CreateSyncRun(ctx, rec); err != nil {
		logger.Log.Error("Failed to record sync run", zap.String("run_id", r.id), zap.Error(err))
	}

	logger.Log.Info("Starting sync sweep", zap.String("run_id", r.id), zap.String("trigger", string(trigger)))
	m.sweep(ctx, r)

	finished := m.now()
	duration := finished.Sub(r.startedAt)
	if err := m.recordAttempt(ctx, r, finished, duration); err != nil {
		r.fail(err)
	}
	sweepErr := r.err()

	rec.CompletedAt = sql.NullTime{Time: finished.UTC(), Valid: true}
	rec.WorkspacesSynced = r.workspacesSynced
	rec.DatasetsSynced = r.datasetsSynced
	rec.RefreshesAppended = r.refreshesAppended
	rec.ElementsSkipped = r.elementsSkipped
	rec.Status = store.SyncRunSuccess
	if sweepErr != nil {
		rec.Status = store.SyncRunFailed
		rec.ErrorMessage = sql.NullString{String: truncate(sweepErr.Error(), maxErrorMessageLen), Valid: true}
	}
	if err := m.store.UpdateSyncRun(ctx, rec); err != nil {
		logger.Log.Error("Failed to update sync run", zap.String("run_id", r.id), zap.Error(err))
	}
	metrics.ObserveSweep(string(trigger), sweepErr == nil, duration)

	fields := []zap.Field{
		zap.String("run_id", r.id),
		zap.Duration("duration", duration),
		zap.Int("workspaces", r.workspacesSynced),
		zap.Int("datasets", r.datasetsSynced),
		zap.Int("refreshes_appended", r.refreshesAppended),
		zap.Int("skipped", r.elementsSkipped),
	}
	if sweepErr != nil {
		logger.Log.Error("Sync sweep failed", append(fields, zap.Error(sweepErr))...)
		return sweepErr
	}
	logger.Log.Info("Sync sweep completed", fields...)
	return nil
}

// recordAttempt stores the duration of every attempt and advances
// LastAutoSync only when the sweep had no errors. The setup flags are left
// alone so a concurrent enable or disable is not overwritten.
func (m *Manager) recordAttempt(ctx context.Context, r *run, finished time.Time, duration time.Duration) error {
	var last sql.NullTime
	if len(r.errs) == 0 {
		last = sql.NullTime{Time: finished.UTC(), Valid: true}
	}
	if err := m.store.RecordSyncAttempt(ctx, last, int(duration.Round(time.Second).Seconds())); err != nil {
		return fmt.Errorf("record sync attempt: %w", err)
	}
	return nil
}

func (m *Manager) recordSkipped(ctx context.Context, r *run) {
	rec := &store.SyncRun{
		ID:          r.id,
		Trigger:     string(r.trigger),
		StartedAt:   r.startedAt.UTC(),
		CompletedAt: sql.NullTime{Time: m.now().UTC(), Valid: true},
		Status:      store.SyncRunSkipped,
	}
	if err := m.store.CreateSyncRun(ctx, rec); err != nil {
		logger.Log.Error("Failed to record skipped sync run", zap.String("run_id", r.id), zap.Error(err))
	}
}

func (m *Manager) sweep(ctx context.Context, r *run) {
	res, err := m.reconciler.SynchronizeWorkspaces(ctx)
	r.workspacesSynced += res.Upserted
	r.elementsSkipped += res.Skipped
	if err != nil {
		logger.Log.Warn("Workspace listing failed, using stored workspaces", zap.Error(err))
		r.fail(err)
	}

	targets, err := m.targetWorkspaces(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	for _, wsID := range targets {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		m.syncWorkspace(ctx, r, wsID)
	}
}

func (m *Manager) syncWorkspace(ctx context.Context, r *run, workspaceID string) {
	res, err := m.reconciler.SynchronizeDatasets(ctx, workspaceID)
	r.datasetsSynced += res.Upserted
	r.elementsSkipped += res.Skipped
	if err != nil {
		logger.Log.Error("Dataset sync failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		r.fail(err)
		return
	}

	datasets, err := m.store.ListDatasets(ctx, workspaceID)
	if err != nil {
		r.fail(fmt.Errorf("list datasets for workspace %s: %w", workspaceID, err))
		return
	}
	for _, ds := range datasets {
		if !ds.IsRefreshable {
			continue
		}
		h, err := m.reconciler.GetDatasetRefreshHistory(ctx, ds.WorkspaceID, ds.DatasetID)
		r.refreshesAppended += h.Appended
		r.elementsSkipped += h.Skipped
		if err != nil {
			logger.Log.Error("Refresh history sync failed",
				zap.String("workspace_id", ds.WorkspaceID),
				zap.String("dataset_id", ds.DatasetID),
				zap.Error(err),
			)
			r.fail(err)
		}
	}
}

// targetWorkspaces returns the configured allow-list, or every stored
// workspace that is not deleted.
func (m *Manager) targetWorkspaces(ctx context.Context) ([]string, error) {
	if len(m.workspaces) > 0 {
		ids := make([]string, 0, len(m.workspaces))
		for _, ws := range m.workspaces {
			ids = append(ids, strings.ToLower(ws))
		}
		return ids, nil
	}

	stored, err := m.store.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	ids := make([]string, 0, len(stored))
	for _, ws := range stored {
		if strings.EqualFold(ws.State, "Deleted") {
			continue
		}
		ids = append(ids, ws.WorkspaceID)
	}
	return ids, nil
}
