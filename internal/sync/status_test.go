package sync

import (
	"testing"

	"pbi-sync-service/internal/store"
)

func TestMapRefreshStatus(t *testing.T) {
	tests := map[string]store.RefreshStatus{
		"Completed":   store.RefreshCompleted,
		"COMPLETED":   store.RefreshCompleted,
		"failed":      store.RefreshFailed,
		"InProgress":  store.RefreshInProgress,
		"In Progress": store.RefreshInProgress,
		"Disabled":    store.RefreshDisabled,
		"NotStarted":  store.RefreshNotStarted,
		"not started": store.RefreshNotStarted,
		"Unknown":     store.RefreshUnknown,
		"Cancelled":   store.RefreshUnknown,
		"":            store.RefreshUnknown,
	}
	for in, want := range tests {
		if got := MapRefreshStatus(in); got != want {
			t.Errorf("MapRefreshStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
