package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/config"
	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/repository/cache"
	"github.com/mamadbah2/asigest/internal/repository/mongodb"
	"github.com/mamadbah2/asigest/internal/repository/sheets"
	"github.com/mamadbah2/asigest/internal/scheduler"
	"github.com/mamadbah2/asigest/internal/server/handlers"
	"github.com/mamadbah2/asigest/internal/server/router"
	"github.com/mamadbah2/asigest/internal/server/sse"
	"github.com/mamadbah2/asigest/internal/service/alerts"
	dashboardsvc "github.com/mamadbah2/asigest/internal/service/dashboard"
	productionsvc "github.com/mamadbah2/asigest/internal/service/production"
	reportingsvc "github.com/mamadbah2/asigest/internal/service/reporting"
	"github.com/mamadbah2/asigest/pkg/clients/asigest"
	whatsappclient "github.com/mamadbah2/asigest/pkg/clients/whatsapp"
	"github.com/mamadbah2/asigest/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc := cfg.Reporting.Location()
	backend := asigest.NewClient(cfg.Backend)

	store := dashboardsvc.NewStore()
	dashboardSvc := dashboardsvc.NewService(backend, store, cfg.Dashboard.OrdersLimit, loc, logger.Named(baseLogger, "svc.dashboard"))

	if cfg.Redis.Enabled() {
		rdb, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			baseLogger.Warn("redis unavailable, dashboard snapshot cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			snapshots := cache.NewSnapshotCache(rdb)
			seedFromCache(snapshots, store, baseLogger)

			cacheLogger := logger.Named(baseLogger, "repo.cache")
			dashboardSvc.OnApplied(func(ctx context.Context, result models.DashboardResult) {
				if err := snapshots.Save(ctx, result, time.Now()); err != nil {
					cacheLogger.Warn("failed to cache dashboard snapshot", zap.Error(err))
				}
			})
		}
	}

	hub := sse.NewHub(logger.Named(baseLogger, "sse"))
	dashboardSvc.OnApplied(hub.PublishDashboard)

	var notifier *alerts.Notifier
	if cfg.WhatsApp.Enabled() {
		notifier = alerts.NewNotifier(whatsappclient.NewClient(cfg.WhatsApp), cfg.WhatsApp.AlertRecipient, logger.Named(baseLogger, "svc.alerts"))
		dashboardSvc.OnApplied(notifier.OnApplied)
		baseLogger.Info("whatsapp anomaly alerts enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, anomaly alerts disabled")
	}

	reportingSvc := reportingsvc.NewService(backend, loc, logger.Named(baseLogger, "svc.reporting"))
	productionSvc := productionsvc.NewService(backend, dashboardSvc, logger.Named(baseLogger, "svc.production"))

	var (
		reportStore scheduler.ReportStore
		reportSheet scheduler.ReportSheet
		archive     handlers.ReportArchive
	)

	if cfg.MongoDB.Enabled() {
		mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		reportStore = mongoRepo
		archive = mongoRepo
	} else {
		baseLogger.Warn("mongodb not configured, report history disabled")
	}

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		reportSheet = sheetsRepo
	}

	engine := router.New(router.Handlers{
		Dashboard: handlers.NewDashboardHandler(dashboardSvc, hub, logger.Named(baseLogger, "handlers.dashboard")),
		Reports:   handlers.NewReportHandler(reportingSvc, archive, logger.Named(baseLogger, "handlers.reports")),
		Batches:   handlers.NewBatchHandler(productionSvc, logger.Named(baseLogger, "handlers.batches")),
	}, logger.Named(baseLogger, "router"))

	sched := scheduler.NewScheduler(*cfg, dashboardSvc, reportingSvc, reportStore, reportSheet, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// WriteTimeout stays unset: the dashboard stream holds its response open.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.WithCORS(engine, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	// close streams first so Shutdown is not held by idle subscribers
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}

	sched.Stop()
	dashboardSvc.Close()
	if notifier != nil {
		notifier.Wait()
	}
}

func seedFromCache(snapshots *cache.SnapshotCache, store *dashboardsvc.Store, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry, err := snapshots.Load(ctx)
	switch {
	case errors.Is(err, cache.ErrMiss):
		return
	case err != nil:
		log.Warn("failed to load cached dashboard snapshot", zap.Error(err))
		return
	}

	if store.Seed(entry.Result, entry.SavedAt) {
		log.Info("dashboard seeded from cache", zap.Time("saved_at", entry.SavedAt))
	}
}
