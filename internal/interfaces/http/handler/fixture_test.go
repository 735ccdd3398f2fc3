package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/persistence"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/dairyflow/backend/internal/interfaces/http/dto"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// apiFixture serves the ledger handlers over one in-memory SQLite database
type apiFixture struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	now    time.Time

	spoilage *appinv.SpoilageService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	materials := persistence.NewGormMaterialRepository(db)
	batchRepo := persistence.NewGormBatchRepository(db)
	reservations := persistence.NewGormReservationRepository(db)
	consumptions := persistence.NewGormConsumptionRecordRepository(db)
	spoilageRepo := persistence.NewGormSpoilageRecordRepository(db)
	txScope := persistence.NewGormTransactionScope(db)
	log := zap.NewNop()

	batches := appinv.NewBatchService(materials, batchRepo, txScope, log)
	allocation := appinv.NewAllocationService(materials, batchRepo, log)
	reservation := appinv.NewReservationService(materials, reservations, txScope, log)
	consumption := appinv.NewConsumptionService(materials, txScope, log)
	spoilage := appinv.NewSpoilageService(batchRepo, spoilageRepo, txScope, log)
	traceability := appinv.NewTraceabilityService(batchRepo, reservations, consumptions, spoilageRepo, log)

	f := &apiFixture{t: t, db: db, now: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC), spoilage: spoilage}
	clock := func() time.Time { return f.now }
	for _, svc := range []interface{ SetClock(func() time.Time) }{
		batches, allocation, reservation, consumption, spoilage, traceability,
	} {
		svc.SetClock(clock)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")

	mh := NewMaterialHandler(batches)
	api.POST("/materials", mh.Register)
	api.GET("/materials/:id", mh.GetByID)

	bh := NewBatchHandler(batches, traceability)
	sh := NewSpoilageHandler(spoilage)
	api.POST("/batches", bh.Receive)
	api.GET("/batches", bh.List)
	api.GET("/batches/:id", bh.GetByID)
	api.POST("/batches/:id/approve", bh.Approve)
	api.POST("/batches/:id/reject", bh.Reject)
	api.POST("/batches/:id/spoilage", sh.Record)
	api.POST("/batches/:id/dispose", sh.Dispose)
	api.GET("/batches/trace/:code", bh.Trace)
	api.POST("/production-outputs", bh.RecordProductionOutput)

	ah := NewAllocationHandler(allocation)
	api.POST("/allocations/preview", ah.Preview)
	api.POST("/allocations/validate-scan", ah.ValidateScan)

	rh := NewReservationHandler(reservation)
	api.POST("/reservations", rh.Reserve)
	api.POST("/reservations/sweep", rh.Sweep)
	api.POST("/reservations/:order_ref/release", rh.Release)
	api.POST("/reservations/:order_ref/fulfill", rh.Fulfill)

	ch := NewConsumptionHandler(consumption)
	api.POST("/consumptions/production", ch.IssueForProduction)
	api.POST("/consumptions/sale", ch.DispatchForSale)

	api.POST("/spoilage/scan", sh.Scan)
	api.GET("/spoilage", sh.List)
	api.GET("/spoilage/export", sh.Export)
	api.POST("/spoilage/:id/approve", sh.Approve)

	engine.GET("/health", NewHealthHandler(sqlDB).Check)

	f.engine = engine
	return f
}

// testEnvelope decodes the response envelope with a typed data field
type testEnvelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-ID", "tester")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (f *apiFixture) registerMaterial(code, kind string, shelfLife int) appinv.MaterialResponse {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/materials", map[string]any{
		"code": code, "name": code, "kind": kind, "unit": "L", "shelf_life_days": shelfLife,
	})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[appinv.MaterialResponse](f.t, w).Data
}

func (f *apiFixture) receive(materialID, code, received, quantity, expiry string) appinv.BatchResponse {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/batches", map[string]any{
		"material_id":   materialID,
		"batch_code":    code,
		"quantity":      quantity,
		"unit_cost":     "2",
		"received_date": received,
		"expiry_date":   expiry,
	})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[appinv.BatchResponse](f.t, w).Data
}

// failingPinger is a database that never answers
type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return context.DeadlineExceeded }
