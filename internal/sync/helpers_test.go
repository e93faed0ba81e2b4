package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"pbi-sync-service/internal/database"
	"pbi-sync-service/internal/powerbi"
	"pbi-sync-service/internal/store"
)

const (
	wsSales   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	wsOld     = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	dsOrders  = "11111111-1111-1111-1111-111111111111"
	dsRevenue = "22222222-2222-2222-2222-222222222222"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type response struct {
	status int
	body   string
}

// fakeAdmin serves canned admin API responses keyed by "METHOD /path".
type fakeAdmin struct {
	mu     gosync.Mutex
	routes map[string]response
	calls  map[string]int
	bodies map[string]string
}

func newFakeAdmin(t *testing.T, routes map[string]response) (*fakeAdmin, *httptest.Server) {
	t.Helper()
	f := &fakeAdmin{routes: routes, calls: map[string]int{}, bodies: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.calls[key]++
		f.bodies[key] = string(body)
		resp, ok := f.routes[key]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NotFound"}}`))
			return
		}
		if resp.status != 0 {
			w.WriteHeader(resp.status)
		}
		w.Write([]byte(resp.body))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAdmin) set(key string, resp response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key] = resp
}

func (f *fakeAdmin) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeAdmin) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	st, err := store.New(context.Background(), db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestReconciler(srv *httptest.Server, st store.Store) *Reconciler {
	client := powerbi.NewClient(powerbi.ClientConfig{
		BaseURL:   srv.URL + "/v1.0/myorg/",
		RateLimit: 1000,
		RateBurst: 100,
	})
	return NewReconciler(ReconcilerOptions{
		API:   client,
		Store: st,
		Now:   func() time.Time { return testNow },
	})
}

func apiPath(p string) string {
	return "/v1.0/myorg/" + p
}

const salesWorkspaces = `{"value":[
	{"id":"` + wsSales + `","name":"Sales","type":"Workspace","state":"Active","isOnDedicatedCapacity":true},
	{"id":"` + wsOld + `","name":"Archive","type":"Workspace","state":"Deleted"}
]}`

const salesDatasets = `{"value":[
	{"id":"` + dsOrders + `","name":"Orders","configuredBy":"ana@contoso.com","isRefreshable":true,"webUrl":"https://app.powerbi.com/groups/x/datasets/orders"},
	{"id":"` + dsRevenue + `","name":"Revenue","isRefreshable":false}
]}`

const ordersHistory = `{"value":[
	{"requestId":"R1","refreshType":"Scheduled","startTime":"2026-04-30T10:00:00Z","endTime":"2026-04-30T10:30:00Z","status":"Completed"},
	{"requestId":"R2","refreshType":"OnDemand","startTime":"2026-04-30T08:00:00Z","endTime":"2026-04-30T08:10:00Z","status":"Failed",
	 "serviceExceptionJson":"{\"errorCode\":\"ModelRefreshFailed\",\"errorDescription\":\"Credentials expired\"}"}
]}`

func salesRoutes() map[string]response {
	routes := map[string]response{}
	routes["GET "+apiPath("admin/groups")] = response{body: salesWorkspaces}
	routes["GET "+apiPath("admin/groups/"+wsSales+"/datasets")] = response{body: salesDatasets}
	routes["GET "+apiPath("admin/datasets/"+dsOrders+"/refreshes")] = response{body: ordersHistory}
	routes["POST "+apiPath("groups/"+wsSales+"/datasets/"+dsOrders+"/refreshes")] = response{status: http.StatusAccepted}
	return routes
}
