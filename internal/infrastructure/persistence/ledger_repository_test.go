package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ledgerDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newSQLiteDB(t *testing.T) *gorm.DB {
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
	return db
}

func dayN(n int) time.Time {
	return ledgerDay.AddDate(0, 0, n)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func createMaterial(t *testing.T, db *gorm.DB, code string) *inventory.Material {
	t.Helper()
	m, err := inventory.NewMaterial(code, code, inventory.MaterialKindRaw, "L", 7)
	require.NoError(t, err)
	require.NoError(t, NewGormMaterialRepository(db).Create(context.Background(), m))
	return m
}

func createBatch(t *testing.T, db *gorm.DB, materialID uuid.UUID, code string, qty int64, received int, expiry *time.Time) *inventory.Batch {
	t.Helper()
	b, err := inventory.NewBatch(inventory.NewBatchParams{
		MaterialID:   materialID,
		MaterialKind: inventory.MaterialKindRaw,
		BatchCode:    code,
		SourceType:   inventory.BatchSourceRawReceipt,
		SourceRef:    "SUP-1",
		Quantity:     decimal.NewFromInt(qty),
		UnitCost:     decimal.NewFromInt(2),
		ReceivedDate: dayN(received),
		ExpiryDate:   expiry,
	})
	require.NoError(t, err)
	require.NoError(t, NewGormBatchRepository(db).Create(context.Background(), b))
	return b
}

func codes(batches []inventory.Batch) []string {
	out := make([]string, len(batches))
	for i, b := range batches {
		out[i] = b.BatchCode
	}
	return out
}

func TestGormBatchRepository_FindEligible(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	cream := createMaterial(t, db, "CREAM")

	createBatch(t, db, milk.ID, "B-NEW", 50, 3, ptr(dayN(20)))
	createBatch(t, db, milk.ID, "B-OLD", 50, 1, ptr(dayN(20)))
	createBatch(t, db, milk.ID, "B-MID", 50, 2, nil)
	createBatch(t, db, milk.ID, "B-GONE", 50, 0, ptr(dayN(4)))
	createBatch(t, db, cream.ID, "C-1", 50, 0, nil)

	reserved := createBatch(t, db, milk.ID, "B-HELD", 10, 0, nil)
	require.NoError(t, reserved.Reserve(decimal.NewFromInt(10), dayN(4)))
	require.NoError(t, repo.Update(ctx, reserved))

	rejected := createBatch(t, db, milk.ID, "B-BAD", 10, 0, nil)
	_, err := rejected.Reject()
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, rejected))

	t.Run("fifo order without expired, held or rejected batches", func(t *testing.T) {
		got, err := repo.FindEligible(ctx, milk.ID, dayN(4))
		require.NoError(t, err)
		assert.Equal(t, []string{"B-OLD", "B-MID", "B-NEW"}, codes(got))
	})

	t.Run("expiry on the as-of instant is not eligible", func(t *testing.T) {
		got, err := repo.FindEligible(ctx, milk.ID, dayN(20))
		require.NoError(t, err)
		assert.Equal(t, []string{"B-MID"}, codes(got))
	})

	t.Run("locking read returns fifo order", func(t *testing.T) {
		got, err := repo.FindEligibleForUpdate(ctx, milk.ID, dayN(4))
		require.NoError(t, err)
		assert.Equal(t, []string{"B-OLD", "B-MID", "B-NEW"}, codes(got))
	})
}

func TestGormBatchRepository_SameDayTieBreaksOnID(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	milk := createMaterial(t, db, "MILK")

	first := createBatch(t, db, milk.ID, "T-1", 10, 1, nil)
	second := createBatch(t, db, milk.ID, "T-2", 10, 1, nil)
	require.Less(t, first.ID.String(), second.ID.String())

	got, err := repo.FindEligible(context.Background(), milk.ID, dayN(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"T-1", "T-2"}, codes(got))
}

func TestGormBatchRepository_FindByCode(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	milk := createMaterial(t, db, "MILK")
	createBatch(t, db, milk.ID, "RM-20240301-0001", 10, 0, nil)

	got, err := repo.FindByCode(context.Background(), " rm-20240301-0001\n")
	require.NoError(t, err)
	assert.Equal(t, "RM-20240301-0001", got.BatchCode)

	_, err = repo.FindByCode(context.Background(), "RM-missing")
	assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
}

func TestGormBatchRepository_FindPastExpiry(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	milk := createMaterial(t, db, "MILK")

	createBatch(t, db, milk.ID, "E-2", 10, 0, ptr(dayN(2)))
	createBatch(t, db, milk.ID, "E-1", 10, 0, ptr(dayN(1)))
	createBatch(t, db, milk.ID, "E-TODAY", 10, 0, ptr(dayN(5)))
	createBatch(t, db, milk.ID, "E-NONE", 10, 0, nil)

	got, err := repo.FindPastExpiry(context.Background(), dayN(5), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"E-1", "E-2"}, codes(got))

	limited, err := repo.FindPastExpiry(context.Background(), dayN(5), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"E-1"}, codes(limited))
}

func TestGormBatchRepository_List(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	milk := createMaterial(t, db, "MILK")
	cream := createMaterial(t, db, "CREAM")
	for i, code := range []string{"RM-A", "RM-B", "RM-C"} {
		createBatch(t, db, milk.ID, code, 10, i, nil)
	}
	createBatch(t, db, cream.ID, "CR-A", 10, 0, nil)

	got, total, err := repo.List(context.Background(), shared.Filter{
		Page:     2,
		PageSize: 2,
		Filters:  map[string]any{"material_id": milk.ID},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []string{"RM-C"}, codes(got))

	got, total, err = repo.List(context.Background(), shared.Filter{Search: "rm-b"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{"RM-B"}, codes(got))

	got, _, err = repo.List(context.Background(), shared.Filter{OrderBy: "batch_code", OrderDir: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RM-C", "RM-B", "RM-A", "CR-A"}, codes(got))
}

func TestGormBatchRepository_UpdateIsOptimistic(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	b := createBatch(t, db, milk.ID, "OPT-1", 100, 0, nil)

	stale, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, b.Reserve(decimal.NewFromInt(30), dayN(1)))
	require.NoError(t, repo.Update(ctx, b))

	require.NoError(t, stale.Reserve(decimal.NewFromInt(80), dayN(1)))
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, inventory.ErrConcurrencyConflict)
	assert.True(t, inventory.IsRetryable(err))

	fresh, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, fresh.ReservedQuantity.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 2, fresh.Version)
}

func TestGormMaterialRepository_AdjustOnHand(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormMaterialRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "milk ")

	require.NoError(t, repo.AdjustOnHand(ctx, milk.ID, decimal.NewFromInt(120)))
	require.NoError(t, repo.AdjustOnHand(ctx, milk.ID, decimal.NewFromInt(-20)))

	got, err := repo.FindByCode(ctx, "MILK")
	require.NoError(t, err)
	assert.True(t, got.OnHandQuantity.Equal(decimal.NewFromInt(100)), got.OnHandQuantity.String())

	err = repo.AdjustOnHand(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, inventory.ErrMaterialNotFound)
}

func TestGormReservationRepository(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormReservationRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	b := createBatch(t, db, milk.ID, "R-1", 100, 0, nil)

	expired, err := inventory.NewReservation(b, "SO-1", "1", decimal.NewFromInt(10), dayN(1))
	require.NoError(t, err)
	live, err := inventory.NewReservation(b, "SO-2", "1", decimal.NewFromInt(10), dayN(9))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, repo.Create(ctx, live))

	t.Run("finds expired active reservations", func(t *testing.T) {
		got, err := repo.FindExpiredActive(ctx, dayN(2), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "SO-1", got[0].OrderRef)
	})

	t.Run("closing twice conflicts", func(t *testing.T) {
		require.NoError(t, expired.Expire(dayN(2)))
		require.NoError(t, repo.Update(ctx, expired))

		again := *expired
		err := repo.Update(ctx, &again)
		assert.ErrorIs(t, err, inventory.ErrConcurrencyConflict)

		active, err := repo.FindActiveByOrder(ctx, "SO-1")
		require.NoError(t, err)
		assert.Empty(t, active)

		all, err := repo.FindByOrder(ctx, "SO-1")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, inventory.ReservationStatusExpired, all[0].Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, inventory.ErrReservationNotFound)
	})
}

func TestGormConsumptionRecordRepository(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormConsumptionRecordRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	b := createBatch(t, db, milk.ID, "C-1", 100, 0, nil)

	cctx := inventory.ConsumptionContext{
		Reason:     inventory.ConsumptionReasonProduction,
		ContextRef: "PRD-7",
		ActorRef:   "line-2",
		Metadata:   map[string]string{"line": "2"},
	}
	require.NoError(t, b.Consume(decimal.NewFromInt(30), decimal.Zero, dayN(1)))
	first := inventory.NewConsumptionRecord(b, decimal.NewFromInt(30), cctx, nil, dayN(1))
	require.NoError(t, b.Consume(decimal.NewFromInt(20), decimal.Zero, dayN(2)))
	second := inventory.NewConsumptionRecord(b, decimal.NewFromInt(20), cctx, nil, dayN(2))
	require.NoError(t, repo.Append(ctx, second, first))
	require.NoError(t, repo.Append(ctx))

	got, err := repo.FindByContext(ctx, inventory.ConsumptionReasonProduction, "PRD-7")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].ConsumedAt.Equal(dayN(1)))
	assert.Equal(t, "2", got[0].Metadata["line"])
	assert.True(t, got[1].BatchRemainingAfter.Equal(decimal.NewFromInt(50)))

	window, err := repo.FindByMaterialWindow(ctx, milk.ID, dayN(2), dayN(3))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.True(t, window[0].Quantity.Equal(decimal.NewFromInt(20)))
}

func TestGormSpoilageRecordRepository(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewGormSpoilageRecordRepository(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	b := createBatch(t, db, milk.ID, "S-1", 100, 0, ptr(dayN(3)))

	expiry, err := inventory.NewSpoilageRecord(b, decimal.NewFromInt(100), inventory.SpoilageReasonExpired, false, "", dayN(4))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, expiry))

	damaged, err := inventory.NewSpoilageRecord(b, decimal.NewFromInt(5), inventory.SpoilageReasonDamaged, true, "dropped", dayN(2))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, damaged))

	t.Run("one expiry record per batch", func(t *testing.T) {
		dup, err := inventory.NewSpoilageRecord(b, decimal.NewFromInt(100), inventory.SpoilageReasonExpired, false, "", dayN(5))
		require.NoError(t, err)
		assert.Error(t, repo.Create(ctx, dup))

		got, err := repo.FindExpiryRecord(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, expiry.ID, got.ID)
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		got, total, err := repo.List(ctx, shared.Filter{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, got, 2)
		assert.Equal(t, inventory.SpoilageReasonExpired, got[0].Reason)

		got, total, err = repo.List(ctx, shared.Filter{Filters: map[string]any{"fifo_bypassed": true}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, "dropped", got[0].Notes)
	})

	t.Run("written off records are not open", func(t *testing.T) {
		require.NoError(t, damaged.Approve(dayN(3)))
		require.NoError(t, damaged.WriteOff(dayN(3)))
		require.NoError(t, repo.Update(ctx, damaged))

		open, err := repo.FindOpenByBatch(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, expiry.ID, open[0].ID)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, inventory.ErrSpoilageNotFound)
	})
}

func TestGormBatchCodeSequence_Next(t *testing.T) {
	db := newSQLiteDB(t)
	seq := NewGormBatchCodeSequence(db)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "RM-20240301")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := seq.Next(ctx, "FG-20240301")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestGormTransactionScope_RollsBack(t *testing.T) {
	db := newSQLiteDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	milk := createMaterial(t, db, "MILK")
	boom := errors.New("boom")

	err := scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		if err := repos.Materials().AdjustOnHand(ctx, milk.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		b, err := inventory.NewBatch(inventory.NewBatchParams{
			MaterialID:   milk.ID,
			MaterialKind: inventory.MaterialKindRaw,
			BatchCode:    "TX-1",
			SourceType:   inventory.BatchSourceRawReceipt,
			Quantity:     decimal.NewFromInt(50),
			ReceivedDate: dayN(0),
		})
		if err != nil {
			return err
		}
		if err := repos.Batches().Create(ctx, b); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewGormBatchRepository(db).FindByCode(ctx, "TX-1")
	assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
	got, err := NewGormMaterialRepository(db).FindByID(ctx, milk.ID)
	require.NoError(t, err)
	assert.True(t, got.OnHandQuantity.IsZero())
}
