package sync

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"pbi-sync-service/internal/lock"
	"pbi-sync-service/internal/store"
)

func saveSetup(t *testing.T, st store.Store, enabled bool, freq int, last time.Time) {
	t.Helper()
	setup := &store.Setup{
		AutoSyncEnabled:    enabled,
		SyncFrequencyHours: freq,
		AuthorityURL:       "https://login.microsoftonline.com/",
		APIBaseURL:         "https://api.powerbi.com/v1.0/myorg/",
	}
	if !last.IsZero() {
		setup.LastAutoSync = sql.NullTime{Time: last, Valid: true}
	}
	if err := st.SaveSetup(context.Background(), setup); err != nil {
		t.Fatalf("SaveSetup: %v", err)
	}
}

func newTestManager(t *testing.T, routes map[string]response, locker lock.Locker) (*Manager, store.Store, *fakeAdmin) {
	t.Helper()
	fake, srv := newFakeAdmin(t, routes)
	st := newTestStore(t)
	m := NewManager(ManagerOptions{
		Store:      st,
		Reconciler: newTestReconciler(srv, st),
		Locker:     locker,
		Now:        func() time.Time { return testNow },
	})
	return m, st, fake
}

func TestRunAutoSyncFirstRun(t *testing.T) {
	ctx := context.Background()
	m, st, fake := newTestManager(t, salesRoutes(), nil)
	saveSetup(t, st, true, 24, time.Time{})

	ran, err := m.RunAutoSync(ctx)
	if err != nil || !ran {
		t.Fatalf("RunAutoSync = %v, %v; want true, nil", ran, err)
	}

	setup, _ := st.GetSetup(ctx)
	if !setup.LastAutoSync.Valid || !setup.LastAutoSync.Time.Equal(testNow) {
		t.Errorf("LastAutoSync = %v, want %v", setup.LastAutoSync, testNow)
	}

	entries, _ := st.ListRefreshes(ctx, dsOrders, 0)
	if len(entries) != 2 {
		t.Errorf("ledger has %d entries, want 2", len(entries))
	}
	// Revenue is not refreshable and the Archive workspace is deleted.
	if n := fake.count("GET " + apiPath("admin/datasets/"+dsRevenue+"/refreshes")); n != 0 {
		t.Errorf("fetched history of a non-refreshable dataset %d times", n)
	}
	if n := fake.count("GET " + apiPath("admin/groups/"+wsOld+"/datasets")); n != 0 {
		t.Errorf("listed datasets of a deleted workspace %d times", n)
	}

	runs, _ := st.ListSyncRuns(ctx, 10, 0)
	if len(runs) != 1 {
		t.Fatalf("got %d sync runs, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != store.SyncRunSuccess || run.Trigger != string(TriggerScheduled) {
		t.Errorf("run = %+v", run)
	}
	if run.WorkspacesSynced != 2 || run.DatasetsSynced != 2 || run.RefreshesAppended != 2 {
		t.Errorf("run counters = %d/%d/%d", run.WorkspacesSynced, run.DatasetsSynced, run.RefreshesAppended)
	}
	if m.GetStatus() != StatusIdle {
		t.Errorf("status after sweep = %q", m.GetStatus())
	}
}

func TestRunAutoSyncFailureKeepsLastSync(t *testing.T) {
	ctx := context.Background()
	routes := salesRoutes()
	routes["GET "+apiPath("admin/datasets/"+dsOrders+"/refreshes")] = response{status: http.StatusInternalServerError, body: "backend down"}
	m, st, _ := newTestManager(t, routes, nil)

	last := testNow.Add(-48 * time.Hour)
	saveSetup(t, st, true, 24, last)

	ran, err := m.RunAutoSync(ctx)
	if !ran || err == nil {
		t.Fatalf("RunAutoSync = %v, %v; want true and an error", ran, err)
	}

	setup, _ := st.GetSetup(ctx)
	if !setup.LastAutoSync.Time.Equal(last) {
		t.Errorf("LastAutoSync moved to %v on failure", setup.LastAutoSync.Time)
	}
	// Listings still landed before the history step failed.
	if ds, _ := st.GetDataset(ctx, wsSales, dsOrders); ds == nil {
		t.Error("dataset listing was not persisted")
	}

	runs, _ := st.ListSyncRuns(ctx, 10, 0)
	if len(runs) != 1 || runs[0].Status != store.SyncRunFailed || !runs[0].ErrorMessage.Valid {
		t.Errorf("runs = %+v, want one failed run with a message", runs)
	}
}

func TestRunAutoSyncSilentPaths(t *testing.T) {
	tests := []struct {
		name    string
		setup   bool
		enabled bool
		last    time.Time
	}{
		{"no setup", false, false, time.Time{}},
		{"disabled", true, false, time.Time{}},
		{"not due", true, true, testNow.Add(-time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, st, fake := newTestManager(t, salesRoutes(), nil)
			if tt.setup {
				saveSetup(t, st, tt.enabled, 24, tt.last)
			}

			ran, err := m.RunAutoSync(context.Background())
			if ran || err != nil {
				t.Errorf("RunAutoSync = %v, %v; want false, nil", ran, err)
			}
			if n := fake.total(); n != 0 {
				t.Errorf("made %d API calls", n)
			}
			runs, _ := st.ListSyncRuns(context.Background(), 10, 0)
			if len(runs) != 0 {
				t.Errorf("recorded %d runs", len(runs))
			}
		})
	}
}

func TestForceSyncIgnoresSchedule(t *testing.T) {
	ctx := context.Background()
	m, st, _ := newTestManager(t, salesRoutes(), nil)
	saveSetup(t, st, false, 24, testNow.Add(-time.Hour))

	if err := m.ForceSync(ctx); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	setup, _ := st.GetSetup(ctx)
	if !setup.LastAutoSync.Time.Equal(testNow) {
		t.Errorf("LastAutoSync = %v, want %v", setup.LastAutoSync.Time, testNow)
	}
	runs, _ := st.ListSyncRuns(ctx, 10, 0)
	if len(runs) != 1 || runs[0].Trigger != string(TriggerForced) {
		t.Errorf("runs = %+v", runs)
	}
}

// disablingStore turns auto-sync off the first time the sweep lists datasets,
// the way an operator request would while a sweep is in flight.
type disablingStore struct {
	store.Store
	once bool
}

func (d *disablingStore) ListDatasets(ctx context.Context, workspaceID string) ([]*store.Dataset, error) {
	if !d.once {
		d.once = true
		setup, err := d.Store.GetSetup(ctx)
		if err != nil {
			return nil, err
		}
		setup.AutoSyncEnabled = false
		setup.ScheduledJobID = sql.NullString{}
		if err := d.Store.SaveSetup(ctx, setup); err != nil {
			return nil, err
		}
	}
	return d.Store.ListDatasets(ctx, workspaceID)
}

func TestSweepKeepsConcurrentDisable(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeAdmin(t, salesRoutes())
	st := newTestStore(t)
	if err := st.SaveSetup(ctx, &store.Setup{
		AutoSyncEnabled:    true,
		SyncFrequencyHours: 24,
		ScheduledJobID:     sql.NullString{String: "1", Valid: true},
	}); err != nil {
		t.Fatalf("SaveSetup: %v", err)
	}
	m := NewManager(ManagerOptions{
		Store:      &disablingStore{Store: st},
		Reconciler: newTestReconciler(srv, st),
		Now:        func() time.Time { return testNow },
	})

	if err := m.ForceSync(ctx); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	setup, _ := st.GetSetup(ctx)
	if setup.AutoSyncEnabled || setup.ScheduledJobID.Valid {
		t.Errorf("sweep resurrected auto-sync: %+v", setup)
	}
	if !setup.LastAutoSync.Time.Equal(testNow) {
		t.Errorf("LastAutoSync = %v, want %v", setup.LastAutoSync.Time, testNow)
	}
}

func TestForceSyncWhileRunning(t *testing.T) {
	m, _, fake := newTestManager(t, salesRoutes(), nil)
	m.setStatus(StatusRunning)

	if err := m.ForceSync(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("ForceSync = %v, want ErrSyncInProgress", err)
	}
	if fake.total() != 0 {
		t.Error("a busy manager must not call the API")
	}
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

func TestForceSyncLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	m, st, fake := newTestManager(t, salesRoutes(), busyLocker{})

	if err := m.ForceSync(ctx); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("ForceSync = %v, want ErrSyncInProgress", err)
	}
	if fake.total() != 0 {
		t.Error("sweep ran without the lock")
	}
	runs, _ := st.ListSyncRuns(ctx, 10, 0)
	if len(runs) != 1 || runs[0].Status != store.SyncRunSkipped {
		t.Errorf("runs = %+v, want one skipped run", runs)
	}
	if m.GetStatus() != StatusIdle {
		t.Errorf("status = %q, want idle", m.GetStatus())
	}
}

func TestSweepWorkspaceAllowList(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeAdmin(t, salesRoutes())
	st := newTestStore(t)
	m := NewManager(ManagerOptions{
		Store:      st,
		Reconciler: newTestReconciler(srv, st),
		Workspaces: []string{"AAAAAAAA-AAAA-AAAA-AAAA-AAAAAAAAAAAA"},
		Now:        func() time.Time { return testNow },
	})

	if err := m.ForceSync(ctx); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	if n := fake.count("GET " + apiPath("admin/groups/"+wsSales+"/datasets")); n != 1 {
		t.Errorf("allow-listed workspace listed %d times, want 1", n)
	}
}
