package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pbi-sync-service/internal/sync"
)

func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.store.ListWorkspaces(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]workspaceView, 0, len(workspaces))
	for _, ws := range workspaces {
		out = append(out, newWorkspaceView(ws))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	wsID, ok := pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	datasets, err := h.store.ListDatasets(r.Context(), wsID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]datasetView, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, newDatasetView(ds))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetWorkspaceStats(w http.ResponseWriter, r *http.Request) {
	wsID, ok := pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	stats, err := sync.Stats(r.Context(), h.store, wsID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetTenantStats(w http.ResponseWriter, r *http.Request) {
	stats, err := sync.TenantStats(r.Context(), h.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListRefreshes(w http.ResponseWriter, r *http.Request) {
	dsID, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	entries, err := h.store.ListRefreshes(r.Context(), dsID, queryInt(r, "limit", 50, 500))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]refreshView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newRefreshView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	wsID, ok := pathID(w, r, "workspaceID")
	if !ok {
		return
	}
	dsID, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	if err := h.reconciler.TriggerRefresh(r.Context(), wsID, dsID); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// pathID parses a GUID URL parameter into its canonical lower-case form.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil || id == uuid.Nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid "+name))
		return "", false
	}
	return id.String(), true
}

func queryInt(r *http.Request, name string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
