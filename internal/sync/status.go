package sync

import (
	"strings"

	"pbi-sync-service/internal/store"
)

// MapRefreshStatus converts an admin API refresh status to the ledger enum.
// Matching is case-insensitive and anything unrecognised maps to Unknown.
func MapRefreshStatus(s string) store.RefreshStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return store.RefreshCompleted
	case "failed":
		return store.RefreshFailed
	case "inprogress", "in progress":
		return store.RefreshInProgress
	case "disabled":
		return store.RefreshDisabled
	case "notstarted", "not started":
		return store.RefreshNotStarted
	default:
		return store.RefreshUnknown
	}
}
