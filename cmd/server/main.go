package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/dairyflow/backend/docs"
	appinv "github.com/dairyflow/backend/internal/application/inventory"
	domaininv "github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/cache"
	"github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/dairyflow/backend/internal/infrastructure/event"
	"github.com/dairyflow/backend/internal/infrastructure/export"
	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/dairyflow/backend/internal/infrastructure/migration"
	"github.com/dairyflow/backend/internal/infrastructure/persistence"
	"github.com/dairyflow/backend/internal/infrastructure/scheduler"
	"github.com/dairyflow/backend/internal/infrastructure/storage"
	"github.com/dairyflow/backend/internal/infrastructure/telemetry"
	"github.com/dairyflow/backend/internal/interfaces/http/handler"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/dairyflow/backend/internal/interfaces/http/router"
	"github.com/dairyflow/backend/migrations"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

//	@title			Dairy Batch Ledger API
//	@version		1.0
//	@description	FIFO batch ledger for dairy raw materials and finished goods: receipts, reservations, consumption, spoilage and traceability.

//	@contact.name	Ledger Team

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    serviceVersion,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// Log export tees a second core into the console logger
	logsCfg := otelCfg
	logsCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, logsCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if logsCfg.Enabled {
		if log, err = logger.New(logCfg, logProvider.ZapCore(otelCfg.ServiceName, logger.ParseLevel(cfg.Log.Level))); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting dairy batch ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	metricsCfg := otelCfg
	metricsCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled
	meterProvider, err := telemetry.NewMeterProvider(ctx, metricsCfg, cfg.Telemetry.MetricsExportInterval, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: otelCfg.ServiceName,
		Environment:     cfg.App.Env,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.Open(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if stats, err := db.PoolStats(); err == nil {
			log.Info("Database pool at shutdown",
				zap.Int("open", stats.OpenConnections),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait_duration", stats.WaitDuration),
			)
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if cfg.Database.MigrateOnStart {
		if err := migrateSchema(db, log); err != nil {
			log.Fatal("Schema migration failed", zap.Error(err))
		}
	}

	// Redis backs idempotency replay and the maintenance lock across replicas
	var (
		redisClient      *redis.Client
		idempotencyStore shared.IdempotencyStore
		locker           cache.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		idempotencyStore = cache.NewRedisIdempotencyStore(redisClient, "dairy:idem")
		locker = cache.NewRedisLocker(redisClient, "dairy:lock:")
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		memStore := cache.NewInMemoryIdempotencyStore()
		defer func() {
			_ = memStore.Close()
		}()
		idempotencyStore = memStore
		locker = cache.NewLocalLocker()
		log.Warn("Redis disabled, idempotency keys and maintenance locks are process-local")
	}

	// Event bus: audit log and ledger metrics
	eventBus := event.NewInMemoryEventBus(log, event.WithAsyncHandlers(cfg.Event.AsyncHandlers))
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter("dairyflow/ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	eventBus.Subscribe(ledgerMetrics)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	services, err := newLedgerServices(ctx, cfg, db, eventBus, log)
	if err != nil {
		log.Fatal("Failed to build ledger services", zap.Error(err))
	}

	var maintenance *scheduler.LedgerMaintenanceTrigger
	if cfg.Scheduler.Enabled {
		maintenance, err = scheduler.NewLedgerMaintenanceTrigger(scheduler.MaintenanceConfig{
			SweepInterval: cfg.Scheduler.SweepInterval,
			ScanHour:      cfg.Scheduler.ScanHour,
			ScanMinute:    cfg.Scheduler.ScanMinute,
			CheckInterval: time.Minute,
			JobTimeout:    cfg.Scheduler.JobTimeout,
			LockTTL:       cfg.Scheduler.LockTTL,
		}, services.reservations, services.spoilage, locker, log)
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		if err := maintenance.Start(ctx); err != nil {
			log.Fatal("Failed to start ledger maintenance", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := router.NewEngine(router.EngineConfig{
		HTTP:             cfg.HTTP,
		Swagger:          cfg.Swagger,
		Idempotency:      cfg.Idempotency,
		Telemetry:        cfg.Telemetry,
		IdempotencyStore: idempotencyStore,
		MeterProvider:    meterProvider,
		Logger:           log,
	}, router.Handlers{
		Materials:    handler.NewMaterialHandler(services.batches),
		Batches:      handler.NewBatchHandler(services.batches, services.traceability),
		Allocations:  handler.NewAllocationHandler(services.allocation),
		Reservations: handler.NewReservationHandler(services.reservations),
		Consumptions: handler.NewConsumptionHandler(services.consumption),
		Spoilage:     handler.NewSpoilageHandler(services.spoilage),
	}, handler.NewHealthHandler(db))
	defer engine.Close()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if maintenance != nil {
		if err := maintenance.Stop(shutdownCtx); err != nil {
			log.Warn("Ledger maintenance did not stop cleanly", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not drain", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Metrics flush failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Trace flush failed", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Log export flush failed", zap.Error(err))
	}

	log.Info("Server exited")
}

// ledgerServices groups the application services behind the HTTP handlers
type ledgerServices struct {
	batches      *appinv.BatchService
	allocation   *appinv.AllocationService
	reservations *appinv.ReservationService
	consumption  *appinv.ConsumptionService
	spoilage     *appinv.SpoilageService
	traceability *appinv.TraceabilityService
}

func newLedgerServices(ctx context.Context, cfg *config.Config, db *persistence.Database, publisher shared.EventPublisher, log *zap.Logger) (*ledgerServices, error) {
	materialRepo := persistence.NewGormMaterialRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	reservationRepo := persistence.NewGormReservationRepository(db.DB)
	consumptionRepo := persistence.NewGormConsumptionRecordRepository(db.DB)
	spoilageRepo := persistence.NewGormSpoilageRecordRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	s := &ledgerServices{
		batches:      appinv.NewBatchService(materialRepo, batchRepo, txScope, log),
		allocation:   appinv.NewAllocationService(materialRepo, batchRepo, log),
		reservations: appinv.NewReservationService(materialRepo, reservationRepo, txScope, log),
		consumption:  appinv.NewConsumptionService(materialRepo, txScope, log),
		spoilage:     appinv.NewSpoilageService(batchRepo, spoilageRepo, txScope, log),
		traceability: appinv.NewTraceabilityService(batchRepo, reservationRepo, consumptionRepo, spoilageRepo, log),
	}

	s.batches.SetEventPublisher(publisher)
	s.batches.SetBatchCodePrefixes(map[domaininv.BatchSourceType]string{
		domaininv.BatchSourceRawReceipt: cfg.Ledger.RawCodePrefix,
		domaininv.BatchSourceProduction: cfg.Ledger.FinishedCodePrefix,
	})
	s.reservations.SetEventPublisher(publisher)
	s.reservations.SetDefaultReservationTTL(cfg.Ledger.ReservationTTL)
	s.reservations.SetSweepLimit(cfg.Ledger.SweepBatchLimit)
	s.consumption.SetEventPublisher(publisher)
	s.spoilage.SetEventPublisher(publisher)
	s.spoilage.SetBypassDetection(cfg.Ledger.BypassDetectionEnabled, cfg.Ledger.BypassWindow)
	s.spoilage.SetScanBatchLimit(cfg.Ledger.ScanBatchLimit)
	s.spoilage.SetRegisterRenderer(export.NewXLSXRegisterRenderer(time.Local))

	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, err
		}
		s.spoilage.SetReportArchive(archive, cfg.Storage.Prefix)
		log.Info("Spoilage register archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}
	return s, nil
}

func migrateSchema(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.SQL()
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	// Close would also close sqlDB, which the server keeps using
	return m.EnsureCurrent()
}
