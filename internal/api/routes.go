package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pbi-sync-service/internal/logger"
	"pbi-sync-service/internal/setup"
	"pbi-sync-service/internal/store"
	"pbi-sync-service/internal/sync"
)

type HandlerOptions struct {
	Manager    *sync.Manager
	Setup      *setup.Service
	Store      store.Store
	Reconciler *sync.Reconciler
	// AuthToken protects /api/v1 with a bearer token. Empty disables auth.
	AuthToken   string
	CorsOrigins []string
	// BaseContext bounds background sweeps started by the API.
	BaseContext context.Context
}

type Handler struct {
	syncManager *sync.Manager
	setup       *setup.Service
	store       store.Store
	reconciler  *sync.Reconciler
	authToken   string
	corsOrigins []string
	baseCtx     context.Context
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if len(opts.CorsOrigins) == 0 {
		opts.CorsOrigins = []string{"*"}
	}
	return &Handler{
		syncManager: opts.Manager,
		setup:       opts.Setup,
		store:       opts.Store,
		reconciler:  opts.Reconciler,
		authToken:   opts.AuthToken,
		corsOrigins: opts.CorsOrigins,
		baseCtx:     opts.BaseContext,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/runs", h.ListSyncRuns)

		r.Get("/setup", h.GetSetup)
		r.Post("/setup/enable", h.EnableAutoSync)
		r.Post("/setup/disable", h.DisableAutoSync)
		r.Put("/setup/frequency", h.SetFrequency)
		r.Post("/setup/validate", h.ValidateJob)

		r.Get("/stats", h.GetTenantStats)
		r.Get("/workspaces", h.ListWorkspaces)
		r.Get("/workspaces/{workspaceID}/datasets", h.ListDatasets)
		r.Get("/workspaces/{workspaceID}/stats", h.GetWorkspaceStats)
		r.Post("/workspaces/{workspaceID}/datasets/{datasetID}/refresh", h.TriggerRefresh)
		r.Get("/datasets/{datasetID}/refreshes", h.ListRefreshes)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// TriggerSync starts a forced sweep in the background. With ?wait=true the
// request blocks until the sweep finishes.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncManager.GetStatus() == sync.StatusRunning {
		writeError(w, http.StatusConflict, sync.ErrSyncInProgress)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if err := h.syncManager.ForceSync(r.Context()); err != nil {
			if errors.Is(err, sync.ErrSyncInProgress) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}

	go func() {
		if err := h.syncManager.ForceSync(h.baseCtx); err != nil {
			logger.Log.Error("Forced sync failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusView{Status: h.syncManager.GetStatus()}

	st, err := h.store.GetSetup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if st != nil {
		resp.AutoSyncEnabled = st.AutoSyncEnabled
		resp.FrequencyHours = st.SyncFrequencyHours
		resp.LastSyncDurationSeconds = st.LastSyncDurationSeconds
		if st.LastAutoSync.Valid {
			last := st.LastAutoSync.Time
			next := last.Add(time.Duration(st.SyncFrequencyHours) * time.Hour)
			resp.LastAutoSync = &last
			resp.NextDue = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 200)
	offset := queryInt(r, "offset", 0, 1<<31-1)

	runs, err := h.store.ListSyncRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]syncRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, newSyncRunView(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSetup(w http.ResponseWriter, r *http.Request) {
	st, err := h.setup.Get(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newSetupView(st))
}

func (h *Handler) EnableAutoSync(w http.ResponseWriter, r *http.Request) {
	st, err := h.setup.EnableAutoSync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newSetupView(st))
}

func (h *Handler) DisableAutoSync(w http.ResponseWriter, r *http.Request) {
	st, err := h.setup.DisableAutoSync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newSetupView(st))
}

type frequencyRequest struct {
	Hours int `json:"hours"`
}

func (h *Handler) SetFrequency(w http.ResponseWriter, r *http.Request) {
	var req frequencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	st, err := h.setup.SetFrequency(r.Context(), req.Hours)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newSetupView(st))
}

func (h *Handler) ValidateJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.setup.ResolveOrClear(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, setup.ErrInvalidFrequency):
		return http.StatusBadRequest
	case errors.Is(err, setup.ErrNoScheduledJob), errors.Is(err, sync.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, setup.ErrNotInstalled):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
