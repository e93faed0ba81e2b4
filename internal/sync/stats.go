package sync

import (
	"context"
	"fmt"
	"strings"

	"pbi-sync-service/internal/store"
)

// WorkspaceStats are the dashboard figures of one workspace, or of the whole
// tenant when WorkspaceID is empty.
type WorkspaceStats struct {
	WorkspaceID       string  `json:"workspace_id,omitempty"`
	DatasetCount      int     `json:"dataset_count"`
	RefreshableCount  int     `json:"refreshable_count"`
	FailedCount       int     `json:"failed_count"`
	AverageOfAverages float64 `json:"average_of_averages_minutes"`
}

// Stats derives workspace figures from the stored datasets.
//
// FailedCount matches "Failed" or "Error" case-sensitively in the last
// refresh status. AverageOfAverages is the plain mean of each dataset's
// average duration; it is not weighted by refresh count.
func Stats(ctx context.Context, st store.Store, workspaceID string) (WorkspaceStats, error) {
	wsID, err := normalizeID(workspaceID)
	if err != nil {
		return WorkspaceStats{}, err
	}
	datasets, err := st.ListDatasets(ctx, wsID)
	if err != nil {
		return WorkspaceStats{WorkspaceID: wsID}, fmt.Errorf("list datasets for workspace %s: %w", wsID, err)
	}
	stats := aggregate(datasets)
	stats.WorkspaceID = wsID
	return stats, nil
}

// TenantStats computes the same figures over every stored dataset.
func TenantStats(ctx context.Context, st store.Store) (WorkspaceStats, error) {
	datasets, err := st.ListDatasets(ctx, "")
	if err != nil {
		return WorkspaceStats{}, fmt.Errorf("list datasets: %w", err)
	}
	return aggregate(datasets), nil
}

func aggregate(datasets []*store.Dataset) WorkspaceStats {
	var (
		stats WorkspaceStats
		sum   float64
	)
	for _, ds := range datasets {
		stats.DatasetCount++
		if ds.IsRefreshable {
			stats.RefreshableCount++
		}
		if strings.Contains(ds.LastRefreshStatus, "Failed") || strings.Contains(ds.LastRefreshStatus, "Error") {
			stats.FailedCount++
		}
		sum += ds.AverageRefreshDurationMinutes
	}
	if stats.DatasetCount > 0 {
		stats.AverageOfAverages = sum / float64(stats.DatasetCount)
	}
	return stats
}
