package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/crm"
	"github.com/northpine-consulting/insight-api/internal/database"
	"github.com/northpine-consulting/insight-api/internal/http/handler"
	"github.com/northpine-consulting/insight-api/internal/http/middleware"
	"github.com/northpine-consulting/insight-api/internal/http/router"
	"github.com/northpine-consulting/insight-api/internal/jobs"
	"github.com/northpine-consulting/insight-api/internal/logger"
	"github.com/northpine-consulting/insight-api/internal/metrics"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/northpine-consulting/insight-api/internal/store"
	"github.com/northpine-consulting/insight-api/internal/timetracking"
	"github.com/northpine-consulting/insight-api/internal/warehouse"
	"go.uber.org/zap"
)

const version = "1.4.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.String("version", version),
		zap.Int("port", cfg.App.Port),
	)

	// Snapshot history store
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Upstream clients. The warehouse is required; the reports cannot be
	// computed without the planned schedule.
	warehouseClient, err := warehouse.NewClient(&cfg.Warehouse, log)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	if warehouseClient == nil {
		return fmt.Errorf("warehouse connection is required, check warehouse configuration")
	}

	timetrackingClient := timetracking.NewClient(&cfg.TimeTracking, log)
	crmClient := crm.NewClient(&cfg.CRM, log)

	m := metrics.New()

	reportService := service.NewReportService(
		warehouseClient,
		timetrackingClient,
		crmClient,
		cfg.Report,
		log,
	)
	snapshotStore := store.NewSnapshotStore(db, log)

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	reportHandler := handler.NewReportHandler(reportService, snapshotStore, m, log)
	healthHandler := handler.NewHealthHandler(warehouseClient, timetrackingClient, crmClient, db, version, log)

	rt := router.NewRouter(cfg, log, rateLimiter, m, reportHandler, healthHandler)

	// Periodic summary snapshots
	var scheduler *jobs.Scheduler
	if cfg.Snapshots.Enabled {
		scheduler = jobs.NewScheduler(log)
		snapshotJob := jobs.NewSnapshotJob(reportService, snapshotStore, cfg.Snapshots, m, log)
		if err := snapshotJob.Register(scheduler); err != nil {
			log.Error("Failed to register snapshot job", zap.Error(err))
		} else {
			scheduler.Start()
			log.Info("Scheduler started with snapshot job",
				zap.String("cron_expr", cfg.Snapshots.CronExpr),
				zap.Int("keep_latest", cfg.Snapshots.KeepLatest),
			)
		}
	} else {
		log.Info("Snapshot job disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			ctx := scheduler.Stop()
			<-ctx.Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if err := warehouseClient.Close(); err != nil {
			log.Warn("Error closing warehouse connection", zap.Error(err))
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
