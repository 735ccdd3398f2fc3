package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dairyflow/backend/internal/infrastructure/cache"
	"github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/dairyflow/backend/internal/interfaces/http/handler"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("batches", "/batches")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.Register(group).Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterUseOnlyWrapsAPIGroup(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r := NewRouter(engine)
	r.Use(func(c *gin.Context) {
		c.Header("X-API", "yes")
		c.Next()
	})
	g := NewDomainGroup("spoilage", "/spoilage")
	g.GET("", func(c *gin.Context) { c.String(http.StatusOK, "list") })
	r.Register(g).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/spoilage", nil))
	assert.Equal(t, "yes", w.Header().Get("X-API"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-API"))
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("reservations", "/reservations")
		assert.Equal(t, "reservations", g.Name())
		assert.Equal(t, "/reservations", g.Prefix())
	})

	t.Run("registers GET and POST routes", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("batches", "/batches")
		g.GET("/:id", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("id"))
		}).POST("", func(c *gin.Context) {
			c.String(http.StatusCreated, "created")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batches/abc", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc", w.Body.String())

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/batches", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("static segment next to a param", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("reservations", "/reservations")
		g.POST("/sweep", func(c *gin.Context) { c.String(http.StatusOK, "sweep") }).
			POST("/:order_ref/release", func(c *gin.Context) { c.String(http.StatusOK, c.Param("order_ref")) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/reservations/sweep", nil))
		assert.Equal(t, "sweep", w.Body.String())

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/reservations/SO-1/release", nil))
		assert.Equal(t, "SO-1", w.Body.String())
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))

		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("consumptions", "/consumptions")
		g.Group("sale", "/sale").POST("", func(c *gin.Context) {
			c.String(http.StatusOK, "sale")
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/consumptions/sale", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "sale", w.Body.String())
	})
}

func TestDomainGroupRoutes(t *testing.T) {
	noop := func(*gin.Context) {}
	g := NewDomainGroup("batches", "/batches")
	g.GET("", noop).POST("/:id/approve", noop)
	g.Group("trace", "/trace").GET("/:code", noop)

	assert.Equal(t, []string{
		"GET /batches",
		"POST /batches/:id/approve",
		"GET /batches/trace/:code",
	}, g.Routes())
}

func ledgerHandlers() Handlers {
	return Handlers{
		Materials:    handler.NewMaterialHandler(nil),
		Batches:      handler.NewBatchHandler(nil, nil),
		Allocations:  handler.NewAllocationHandler(nil),
		Reservations: handler.NewReservationHandler(nil),
		Consumptions: handler.NewConsumptionHandler(nil),
		Spoilage:     handler.NewSpoilageHandler(nil),
	}
}

var ledgerAPI = []string{
	"POST /materials",
	"GET /materials/:id",
	"POST /batches",
	"GET /batches",
	"GET /batches/:id",
	"POST /batches/:id/approve",
	"POST /batches/:id/reject",
	"POST /batches/:id/spoilage",
	"POST /batches/:id/dispose",
	"GET /batches/trace/:code",
	"POST /allocations/preview",
	"POST /allocations/validate-scan",
	"POST /reservations",
	"POST /reservations/:order_ref/release",
	"POST /reservations/:order_ref/fulfill",
	"POST /reservations/sweep",
	"POST /consumptions/production",
	"POST /consumptions/sale",
	"POST /production-outputs",
	"POST /spoilage/scan",
	"GET /spoilage",
	"POST /spoilage/:id/approve",
	"GET /spoilage/export",
}

func TestLedgerRoutes(t *testing.T) {
	var got []string
	for _, g := range LedgerRoutes(ledgerHandlers()) {
		got = append(got, g.Routes()...)
	}

	want := append([]string(nil), ledgerAPI...)
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := EngineConfig{
		HTTP: config.HTTPConfig{
			MaxBodySize:      1 << 20,
			RequestTimeout:   5 * time.Second,
			CORSAllowMethods: []string{"GET", "POST"},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e := NewEngine(cfg, ledgerHandlers(), handler.NewHealthHandler(okPinger{}))
	t.Cleanup(e.Close)
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("serves every ledger route under /api/v1", func(t *testing.T) {
		e := newTestEngine(t, nil)

		registered := map[string]bool{}
		for _, route := range e.Routes() {
			registered[route.Method+" "+route.Path] = true
		}
		for _, route := range ledgerAPI {
			method, path, _ := strings.Cut(route, " ")
			assert.True(t, registered[method+" /api/v1"+path], "missing %s", route)
		}
		assert.True(t, registered["GET /health"])
		assert.True(t, registered["GET /swagger/*any"])
	})

	t.Run("health carries request id and security headers", func(t *testing.T) {
		e := newTestEngine(t, nil)

		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("handlers validate before reaching services", func(t *testing.T) {
		e := newTestEngine(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/materials", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("swagger hidden when disabled", func(t *testing.T) {
		e := newTestEngine(t, nil)

		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rate limit", func(t *testing.T) {
		e := newTestEngine(t, func(cfg *EngineConfig) {
			cfg.HTTP.RateLimitEnabled = true
			cfg.HTTP.RateLimitRequests = 1
			cfg.HTTP.RateLimitWindow = time.Minute
		})

		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("failed requests do not burn the idempotency key", func(t *testing.T) {
		store := cache.NewInMemoryIdempotencyStore()
		t.Cleanup(func() { _ = store.Close() })
		e := newTestEngine(t, func(cfg *EngineConfig) {
			cfg.Idempotency = config.IdempotencyConfig{Enabled: true, TTL: time.Hour}
			cfg.IdempotencyStore = store
		})

		for range 2 {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/materials", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.IdempotencyKeyHeader, "key-1")
			w := httptest.NewRecorder()
			e.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Header().Get(middleware.IdempotentReplayHeader))
		}
		assert.Zero(t, store.Size())
	})
}
