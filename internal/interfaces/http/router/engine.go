package router

import (
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/dairyflow/backend/internal/infrastructure/telemetry"
	"github.com/dairyflow/backend/internal/interfaces/http/handler"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// EngineConfig carries what the HTTP engine needs from the rest of the process
type EngineConfig struct {
	HTTP        config.HTTPConfig
	Swagger     config.SwaggerConfig
	Idempotency config.IdempotencyConfig
	Telemetry   config.TelemetryConfig

	// IdempotencyStore backs Idempotency-Key replay; nil turns replay off
	IdempotencyStore shared.IdempotencyStore
	MeterProvider    *telemetry.MeterProvider
	Logger           *zap.Logger
}

// Engine owns the gin engine and the resources its middleware started
type Engine struct {
	*gin.Engine
	rateLimiter *middleware.RateLimiter
}

// Close stops background work started by the middleware
func (e *Engine) Close() {
	if e.rateLimiter != nil {
		e.rateLimiter.Close()
	}
}

// NewEngine builds the gin engine with the middleware stack, /health, the
// swagger UI and every ledger route under /api/v1.
//
// Middleware order:
//  1. RequestID, then the request logger so every log line carries it
//  2. Recovery
//  3. Tracing, span attributes and the error marker
//  4. HTTP metrics and profiling labels
//  5. Security headers, CORS, request deadline, body limit, rate limit
//  6. Idempotency-Key replay, API group only
func NewEngine(cfg EngineConfig, h Handlers, health *handler.HealthHandler) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.ServiceName != "" {
		tracing.ServiceName = cfg.Telemetry.ServiceName
	}
	engine.Use(middleware.TracingWithConfig(tracing))
	engine.Use(middleware.SpanAttributes())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: cfg.MeterProvider,
		Enabled:       cfg.Telemetry.MetricsEnabled,
		Logger:        log,
	}))
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Telemetry.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profiling))

	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		AllowMethods:  cfg.HTTP.CORSAllowMethods,
		AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Export-Rows", "X-Archive-Location", middleware.IdempotentReplayHeader},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	if cfg.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	}

	e := &Engine{Engine: engine}
	if cfg.HTTP.RateLimitEnabled {
		e.rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(e.rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if health != nil {
		engine.GET("/health", health.Check)
	}

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	r := NewRouter(engine, WithAPIVersion("v1"))
	if cfg.Idempotency.Enabled {
		r.Use(middleware.Idempotency(middleware.IdempotencyConfig{
			Store:  cfg.IdempotencyStore,
			TTL:    cfg.Idempotency.TTL,
			Logger: log,
		}))
	}
	for _, group := range LedgerRoutes(h) {
		r.Register(group)
	}
	r.Setup()

	return e
}
