package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pbi-sync-service/internal/api"
	"pbi-sync-service/internal/config"
	"pbi-sync-service/internal/database"
	"pbi-sync-service/internal/lock"
	"pbi-sync-service/internal/logger"
	"pbi-sync-service/internal/powerbi"
	"pbi-sync-service/internal/setup"
	"pbi-sync-service/internal/store"
	"pbi-sync-service/internal/sync"
)

func main() {
	configPath := os.Getenv("PBISYNC_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load Config
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Power BI Sync Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init State Store
	db, err := database.NewDatabase(cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to connect to state database", zap.Error(err))
	}
	stateStore, err := store.New(ctx, db)
	if err != nil {
		logger.Log.Fatal("Failed to init state store", zap.Error(err))
	}
	defer stateStore.Close()

	// Admin API gateway
	client := powerbi.NewClient(powerbi.ClientConfig{
		BaseURL:    cfg.PowerBI.APIBaseURL,
		HTTPClient: powerbi.NewHTTPClient(ctx, cfg.PowerBI),
		Timeout:    cfg.PowerBI.GetTimeout(),
		RateLimit:  cfg.PowerBI.RateLimit,
		RateBurst:  cfg.PowerBI.RateBurst,
	})

	reconciler := sync.NewReconciler(sync.ReconcilerOptions{
		API:             client,
		Store:           stateStore,
		HistoryTop:      cfg.Sync.HistoryTop,
		ListingPageSize: cfg.PowerBI.ListingPageSize,
		MaxPages:        cfg.PowerBI.MaxPages,
	})

	// Sweep lock
	var locker lock.Locker = lock.Local{}
	redisClient, err := lock.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient, cfg.Redis.GetLockTTL())
		logger.Log.Info("Using redis sweep lock", zap.String("addr", cfg.Redis.Addr))
	}

	// Init Sync Manager
	syncManager := sync.NewManager(sync.ManagerOptions{
		Store:      stateStore,
		Reconciler: reconciler,
		Locker:     locker,
		Workspaces: cfg.Sync.Workspaces,
	})

	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)

	setupService := setup.NewService(stateStore, scheduler, setup.Defaults{
		AuthorityURL:    cfg.PowerBI.AuthorityURL,
		APIBaseURL:      cfg.PowerBI.APIBaseURL,
		FrequencyHours:  cfg.Sync.FrequencyHours,
		AutoSyncEnabled: cfg.Sync.AutoSyncEnabled,
	})
	if _, err := setupService.Install(ctx); err != nil {
		logger.Log.Fatal("Failed to install setup record", zap.Error(err))
	}
	if err := setupService.Restore(ctx); err != nil {
		logger.Log.Fatal("Failed to restore scheduled job", zap.Error(err))
	}

	scheduler.Start()

	// Init API
	handler := api.NewHandler(api.HandlerOptions{
		Manager:     syncManager,
		Setup:       setupService,
		Store:       stateStore,
		Reconciler:  reconciler,
		AuthToken:   cfg.Server.AuthToken,
		CorsOrigins: cfg.Server.CorsOrigins,
		BaseContext: ctx,
	})
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
}
