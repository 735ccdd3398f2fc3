package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/persistence"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

func (m *MockEventPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make([]shared.DomainEvent, 0)
}

// ledgerFixture wires every ledger service against one in-memory SQLite database
type ledgerFixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	now       time.Time
	publisher *MockEventPublisher

	materials    *persistence.GormMaterialRepository
	batchRepo    *persistence.GormBatchRepository
	reservations *persistence.GormReservationRepository
	consumptions *persistence.GormConsumptionRecordRepository
	spoilageRepo *persistence.GormSpoilageRecordRepository

	batches      *appinv.BatchService
	allocation   *appinv.AllocationService
	reservation  *appinv.ReservationService
	consumption  *appinv.ConsumptionService
	spoilage     *appinv.SpoilageService
	traceability *appinv.TraceabilityService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	f := &ledgerFixture{
		t:            t,
		ctx:          context.Background(),
		db:           db,
		now:          day(2024, 1, 5),
		publisher:    NewMockEventPublisher(),
		materials:    persistence.NewGormMaterialRepository(db),
		batchRepo:    persistence.NewGormBatchRepository(db),
		reservations: persistence.NewGormReservationRepository(db),
		consumptions: persistence.NewGormConsumptionRecordRepository(db),
		spoilageRepo: persistence.NewGormSpoilageRecordRepository(db),
	}

	txScope := persistence.NewGormTransactionScope(db)
	log := zap.NewNop()
	f.batches = appinv.NewBatchService(f.materials, f.batchRepo, txScope, log)
	f.allocation = appinv.NewAllocationService(f.materials, f.batchRepo, log)
	f.reservation = appinv.NewReservationService(f.materials, f.reservations, txScope, log)
	f.consumption = appinv.NewConsumptionService(f.materials, txScope, log)
	f.spoilage = appinv.NewSpoilageService(f.batchRepo, f.spoilageRepo, txScope, log)
	f.traceability = appinv.NewTraceabilityService(f.batchRepo, f.reservations, f.consumptions, f.spoilageRepo, log)

	clock := func() time.Time { return f.now }
	for _, svc := range []interface {
		SetClock(func() time.Time)
		SetEventPublisher(shared.EventPublisher)
	}{f.batches, f.allocation, f.reservation, f.consumption, f.spoilage, f.traceability} {
		svc.SetClock(clock)
		svc.SetEventPublisher(f.publisher)
	}
	return f
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *ledgerFixture) registerMaterial(code string, kind inventory.MaterialKind) uuid.UUID {
	f.t.Helper()
	m, err := f.batches.RegisterMaterial(f.ctx, appinv.RegisterMaterialRequest{
		Code: code,
		Name: code,
		Kind: kind,
		Unit: "L",
	})
	require.NoError(f.t, err)
	return m.ID
}

// receive adds a batch with an explicit code, received date and optional expiry
func (f *ledgerFixture) receive(materialID uuid.UUID, code string, received time.Time, quantity string, expiry *time.Time) appinv.BatchResponse {
	f.t.Helper()
	b, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
		MaterialID:   materialID,
		BatchCode:    code,
		Quantity:     qty(quantity),
		UnitCost:     qty("2"),
		ReceivedDate: &received,
		ExpiryDate:   expiry,
	})
	require.NoError(f.t, err)
	return *b
}

func (f *ledgerFixture) batch(id uuid.UUID) *inventory.Batch {
	f.t.Helper()
	b, err := f.batchRepo.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *ledgerFixture) onHand(materialID uuid.UUID) decimal.Decimal {
	f.t.Helper()
	m, err := f.materials.FindByID(f.ctx, materialID)
	require.NoError(f.t, err)
	return m.OnHandQuantity
}

func ptr[T any](v T) *T {
	return &v
}
