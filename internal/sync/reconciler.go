package sync

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pbi-sync-service/internal/logger"
	"pbi-sync-service/internal/metrics"
	"pbi-sync-service/internal/powerbi"
	"pbi-sync-service/internal/store"
)

const maxErrorMessageLen = 2048

var (
	datasetIDFields = []string{"id", "objectId"}
	refreshIDFields = []string{"requestId", "id"}
)

// AdminAPI is the part of the admin API gateway the reconciler depends on.
type AdminAPI interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
	GetAll(ctx context.Context, path string, query url.Values, maxPages int) ([]powerbi.Object, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
}

type ReconcilerOptions struct {
	API   AdminAPI
	Store store.Store
	// HistoryTop bounds the refresh history page (default 5).
	HistoryTop int
	// ListingPageSize is sent as $top on workspace listings (default 1000).
	ListingPageSize int
	// MaxPages bounds how many nextLink pages a listing follows (default 100).
	MaxPages int
	Now      func() time.Time
}

// Reconciler upserts admin API listings into the store and ingests refresh
// history into the ledger. Every operation is safe to re-run.
type Reconciler struct {
	api             AdminAPI
	store           store.Store
	historyTop      int
	listingPageSize int
	maxPages        int
	now             func() time.Time
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	if opts.HistoryTop <= 0 {
		opts.HistoryTop = 5
	}
	if opts.ListingPageSize <= 0 {
		opts.ListingPageSize = 1000
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		api:             opts.API,
		store:           opts.Store,
		historyTop:      opts.HistoryTop,
		listingPageSize: opts.ListingPageSize,
		maxPages:        opts.MaxPages,
		now:             opts.Now,
	}
}

// SynchronizeWorkspaces upserts every workspace of the tenant listing.
func (r *Reconciler) SynchronizeWorkspaces(ctx context.Context) (ListingResult, error) {
	var res ListingResult

	query := url.Values{"$top": {strconv.Itoa(r.listingPageSize)}}
	items, err := r.api.GetAll(ctx, "admin/groups", query, r.maxPages)
	if err != nil {
		return res, fmt.Errorf("list workspaces: %w", err)
	}

	now := sql.NullTime{Time: r.now().UTC(), Valid: true}
	for _, item := range items {
		if item == nil {
			r.skip(&res, "workspace", "malformed")
			continue
		}
		id := item.GUID("id")
		name := item.Text("name")
		if invalidGUID(id) {
			r.skip(&res, "workspace", "missing_id")
			continue
		}
		if name == "" {
			r.skip(&res, "workspace", "empty_name")
			continue
		}

		ws := &store.Workspace{
			WorkspaceID:           id.String(),
			Name:                  name,
			Type:                  item.Text("type"),
			State:                 item.Text("state"),
			IsOnDedicatedCapacity: item.Bool("isOnDedicatedCapacity", false),
			LastSynchronized:      now,
		}
		if err := r.store.UpsertWorkspace(ctx, ws); err != nil {
			return res, fmt.Errorf("upsert workspace %s: %w", ws.WorkspaceID, err)
		}
		res.Upserted++
		metrics.EntitiesUpserted.WithLabelValues("workspace").Inc()
	}
	logger.Log.Debug("Synchronized workspaces", zap.Int("upserted", res.Upserted), zap.Int("skipped", res.Skipped))
	return res, nil
}

// SynchronizeDatasets upserts the datasets listed for one workspace, keyed by
// (workspace, dataset). Elements without a usable id or name, and elements
// that belong to another workspace, are skipped without failing the call.
func (r *Reconciler) SynchronizeDatasets(ctx context.Context, workspaceID string) (ListingResult, error) {
	var res ListingResult

	wsID, err := normalizeID(workspaceID)
	if err != nil {
		return res, err
	}

	path := fmt.Sprintf("admin/groups/%s/datasets", wsID)
	items, err := r.api.GetAll(ctx, path, nil, r.maxPages)
	if err != nil {
		return res, fmt.Errorf("list datasets for workspace %s: %w", wsID, err)
	}

	now := sql.NullTime{Time: r.now().UTC(), Valid: true}
	for _, item := range items {
		if item == nil {
			r.skip(&res, "dataset", "malformed")
			continue
		}
		id := item.GUID(datasetIDFields...)
		name := item.Text("name")
		if invalidGUID(id) {
			r.skip(&res, "dataset", "missing_id")
			continue
		}
		if name == "" {
			r.skip(&res, "dataset", "empty_name")
			continue
		}
		if owner := item.GUID("workspaceId"); owner != uuid.Nil && owner.String() != wsID {
			r.skip(&res, "dataset", "other_workspace")
			continue
		}

		ds := &store.Dataset{
			WorkspaceID:      wsID,
			DatasetID:        id.String(),
			Name:             name,
			ConfiguredBy:     item.Text("configuredBy"),
			WebURL:           item.Text("webUrl"),
			IsRefreshable:    item.Bool("isRefreshable", false),
			LastSynchronized: now,
		}
		if err := r.store.UpsertDataset(ctx, ds); err != nil {
			return res, fmt.Errorf("upsert dataset %s: %w", ds.DatasetID, err)
		}
		res.Upserted++
		metrics.EntitiesUpserted.WithLabelValues("dataset").Inc()
	}

	logger.Log.Debug("Synchronized datasets",
		zap.String("workspace_id", wsID),
		zap.Int("upserted", res.Upserted),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// GetDatasetRefreshHistory ingests the newest refresh history page of a
// dataset. New refresh ids are appended to the ledger; known ids are never
// rewritten. The newest usable element overwrites the dataset's last-refresh
// fields and the page replaces its average duration and refresh count. A
// dataset that is not stored locally is a no-op.
func (r *Reconciler) GetDatasetRefreshHistory(ctx context.Context, workspaceID, datasetID string) (HistoryResult, error) {
	var res HistoryResult

	wsID, err := normalizeID(workspaceID)
	if err != nil {
		return res, err
	}
	dsID, err := normalizeID(datasetID)
	if err != nil {
		return res, err
	}

	ds, err := r.store.GetDataset(ctx, wsID, dsID)
	if err != nil {
		return res, fmt.Errorf("load dataset %s: %w", dsID, err)
	}
	if ds == nil {
		return res, nil
	}
	var workspaceName string
	ws, err := r.store.GetWorkspace(ctx, wsID)
	if err != nil {
		return res, fmt.Errorf("load workspace %s: %w", wsID, err)
	}
	if ws != nil {
		workspaceName = ws.Name
	}

	path := fmt.Sprintf("admin/datasets/%s/refreshes", dsID)
	body, err := r.api.Get(ctx, path, url.Values{"$top": {strconv.Itoa(r.historyTop)}})
	if err != nil {
		return res, fmt.Errorf("fetch refresh history for dataset %s: %w", dsID, err)
	}
	items, err := powerbi.ParseArray(body)
	if err != nil {
		return res, fmt.Errorf("parse refresh history for dataset %s: %w", dsID, err)
	}

	var (
		stats   store.RefreshStats
		entries []*store.RefreshHistoryEntry
		seen    = make(map[string]bool)
		total   float64
	)
	for _, item := range items {
		if item == nil {
			r.skipHistory(&res, "malformed")
			continue
		}
		statusText := item.Text("status")
		start, ok := item.Time("startTime")
		if statusText == "" || !ok {
			r.skipHistory(&res, "missing_fields")
			continue
		}
		refreshID := item.FirstText(refreshIDFields...)
		if refreshID == "" {
			r.skipHistory(&res, "missing_refresh_id")
			continue
		}

		status := MapRefreshStatus(statusText)
		end, hasEnd := item.Time("endTime")
		duration := 0.0
		if hasEnd && end.After(start) {
			duration = end.Sub(start).Minutes()
		}

		if stats.Latest == nil {
			at := start
			if hasEnd {
				at = end
			}
			stats.Latest = &store.LatestRefresh{At: at, Status: status, DurationMinutes: duration}
		}

		if seen[refreshID] {
			r.skipHistory(&res, "duplicate_in_page")
			continue
		}
		seen[refreshID] = true
		if hasEnd {
			total += duration
			stats.RefreshCount++
		}

		exists, err := r.store.RefreshExists(ctx, refreshID)
		if err != nil {
			return res, fmt.Errorf("check refresh %s: %w", refreshID, err)
		}
		if exists {
			res.AlreadyRecorded++
			continue
		}

		entry := &store.RefreshHistoryEntry{
			RefreshID:       refreshID,
			DatasetID:       dsID,
			DatasetName:     ds.Name,
			WorkspaceID:     wsID,
			WorkspaceName:   workspaceName,
			StartTime:       start,
			Status:          status,
			RefreshType:     item.Text("refreshType"),
			DurationMinutes: duration,
		}
		if hasEnd {
			entry.EndTime = sql.NullTime{Time: end, Valid: true}
		}
		if status == store.RefreshFailed {
			if msg := refreshErrorMessage(item); msg != "" {
				entry.ErrorMessage = sql.NullString{String: msg, Valid: true}
			}
		}
		entries = append(entries, entry)
	}

	if stats.RefreshCount > 0 {
		stats.AverageDurationMinutes = total / float64(stats.RefreshCount)
	}

	appended, err := r.store.RecordRefreshPage(ctx, wsID, dsID, entries, stats)
	if err != nil {
		return res, fmt.Errorf("record refresh history for dataset %s: %w", dsID, err)
	}
	res.Appended = appended
	res.AlreadyRecorded += len(entries) - appended
	res.RefreshCount = stats.RefreshCount
	res.AverageMinutes = stats.AverageDurationMinutes
	metrics.RefreshesAppended.Add(float64(appended))

	logger.Log.Debug("Ingested refresh history",
		zap.String("workspace_id", wsID),
		zap.String("dataset_id", dsID),
		zap.Int("appended", res.Appended),
		zap.Int("already_recorded", res.AlreadyRecorded),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

type refreshRequest struct {
	NotifyOption string `json:"notifyOption"`
}

// TriggerRefresh asks the service to refresh a dataset. Success only means the
// request was accepted; the outcome shows up in a later history sync.
func (r *Reconciler) TriggerRefresh(ctx context.Context, workspaceID, datasetID string) error {
	wsID, err := normalizeID(workspaceID)
	if err != nil {
		return err
	}
	dsID, err := normalizeID(datasetID)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("groups/%s/datasets/%s/refreshes", wsID, dsID)
	if _, err := r.api.Post(ctx, path, refreshRequest{NotifyOption: "NoNotification"}); err != nil {
		return fmt.Errorf("trigger refresh of dataset %s in workspace %s: %w", dsID, wsID, err)
	}

	logger.Log.Info("Triggered dataset refresh",
		zap.String("workspace_id", wsID),
		zap.String("dataset_id", dsID),
	)
	return nil
}

func (r *Reconciler) skip(res *ListingResult, kind, reason string) {
	res.Skipped++
	metrics.ElementsSkipped.WithLabelValues(kind, reason).Inc()
	logger.Log.Debug("Skipped listing element", zap.String("kind", kind), zap.String("reason", reason))
}

func (r *Reconciler) skipHistory(res *HistoryResult, reason string) {
	res.Skipped++
	metrics.ElementsSkipped.WithLabelValues("refresh", reason).Inc()
	logger.Log.Debug("Skipped refresh history element", zap.String("reason", reason))
}

// invalidGUID rejects the nil GUID and, as a sentinel check against malformed
// payloads, a GUID equal to a freshly generated one.
func invalidGUID(id uuid.UUID) bool {
	return id == uuid.Nil || id == uuid.New()
}

func normalizeID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("invalid id %q", s)
	}
	return id.String(), nil
}

// refreshErrorMessage prefers the structured serviceExceptionJson field and
// falls back to the plain error field.
func refreshErrorMessage(item powerbi.Object) string {
	if raw := item.Text("serviceExceptionJson"); raw != "" {
		if obj, err := powerbi.ParseObject([]byte(raw)); err == nil {
			if msg := obj.FirstText("errorDescription", "errorCode"); msg != "" {
				return truncate(msg, maxErrorMessageLen)
			}
		}
		return truncate(raw, maxErrorMessageLen)
	}
	if obj, ok := item.Object("serviceExceptionJson"); ok {
		if msg := obj.FirstText("errorDescription", "errorCode"); msg != "" {
			return truncate(msg, maxErrorMessageLen)
		}
	}
	if msg := item.Text("error"); msg != "" {
		return truncate(msg, maxErrorMessageLen)
	}
	if obj, ok := item.Object("error"); ok {
		return truncate(obj.FirstText("message", "code"), maxErrorMessageLen)
	}
	return ""
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
