package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expiringFixture has an older batch D (expires 2024-01-10) and a newer
// batch E of the same material
func expiringFixture(t *testing.T) (*ledgerFixture, uuid.UUID, appinv.BatchResponse, appinv.BatchResponse) {
	f := newLedgerFixture(t)
	milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
	d := f.receive(milk, "MILK-D", day(2024, 1, 1), "100", ptr(day(2024, 1, 10)))
	e := f.receive(milk, "MILK-E", day(2024, 1, 3), "50", ptr(day(2024, 1, 30)))
	return f, milk, d, e
}

func TestSpoilageService_ScanExpired(t *testing.T) {
	t.Run("expires the batch and flags a FIFO bypass", func(t *testing.T) {
		f, milk, d, e := expiringFixture(t)

		// E is picked while the older D still has stock
		_, err := f.consumption.DispatchForSale(f.ctx, appinv.DispatchForSaleRequest{
			ProductID: milk,
			Quantity:  qty("10"),
			SaleRef:   "INV-1",
			Plan:      []appinv.PlanLineInput{{BatchID: e.ID, Quantity: qty("10")}},
		})
		require.NoError(t, err)
		_, err = f.reservation.ReserveForOrder(f.ctx, appinv.ReserveForOrderRequest{
			OrderRef: "SO-9", MaterialID: milk, Quantity: qty("20"), TTL: 30 * 24 * time.Hour,
		})
		require.NoError(t, err)

		f.now = day(2024, 1, 11)
		result, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)

		require.Len(t, result.ExpiredBatches, 1)
		expired := result.ExpiredBatches[0]
		assert.Equal(t, d.ID, expired.BatchID)
		assertQty(t, "100", expired.Quantity)
		assertQty(t, "20", expired.ReleasedReserved)
		assert.True(t, expired.FifoBypassed)
		assert.Empty(t, result.Failures)

		require.Len(t, result.SpoilageRecords, 1)
		record := result.SpoilageRecords[0]
		assert.Equal(t, inventory.SpoilageReasonExpired, record.Reason)
		assert.Equal(t, inventory.SpoilageStatusPending, record.Status)
		assert.True(t, record.FifoBypassed)
		assertQty(t, "100", record.QuantitySpoiled)
		assertQty(t, "200", record.TotalLoss)
		assert.Contains(t, record.Notes, "MILK-E")

		batch := f.batch(d.ID)
		assert.Equal(t, inventory.BatchStatusExpired, batch.Status)
		assertQty(t, "0", batch.ReservedQuantity)
		assertQty(t, "100", batch.CurrentQuantity)
		// Expired stock is still on hand until it is disposed
		assertQty(t, "140", f.onHand(milk))

		reservations, err := f.reservations.FindByOrder(f.ctx, "SO-9")
		require.NoError(t, err)
		require.Len(t, reservations, 1)
		assert.Equal(t, inventory.ReservationStatusExpired, reservations[0].Status)

		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeBatchExpired), 1)
		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeSpoilageRecorded), 1)
	})

	t.Run("no bypass when FIFO was honored", func(t *testing.T) {
		f, milk, _, _ := expiringFixture(t)

		_, err := f.consumption.IssueForProduction(f.ctx, appinv.IssueForProductionRequest{
			MaterialID:    milk,
			Quantity:      qty("10"),
			ProductionRef: "PR-1",
		})
		require.NoError(t, err)

		f.now = day(2024, 1, 11)
		result, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		require.Len(t, result.SpoilageRecords, 1)
		assert.False(t, result.SpoilageRecords[0].FifoBypassed)
		assertQty(t, "90", result.SpoilageRecords[0].QuantitySpoiled)
	})

	t.Run("running twice logs exactly one record", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)
		f.now = day(2024, 1, 11)

		first, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		assert.Len(t, first.ExpiredBatches, 1)

		second, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, second.ExpiredBatches)
		assert.Empty(t, second.SpoilageRecords)

		records, err := f.spoilageRepo.FindByBatch(f.ctx, d.ID)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("explicit as-of date", func(t *testing.T) {
		f, _, _, _ := expiringFixture(t)

		result, err := f.spoilage.ScanExpired(f.ctx, ptr(day(2024, 1, 10)))
		require.NoError(t, err)
		// Expiry equal to the scan date is not past expiry yet
		assert.Empty(t, result.ExpiredBatches)

		result, err = f.spoilage.ScanExpired(f.ctx, ptr(day(2024, 2, 1)))
		require.NoError(t, err)
		assert.Len(t, result.ExpiredBatches, 2)
	})

	t.Run("scheduled scan counts whole days", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)

		// Afternoon of D's expiry day
		f.now = day(2024, 1, 10).Add(15 * time.Hour)
		result, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, result.ExpiredBatches)
		assert.True(t, day(2024, 1, 10).Equal(result.AsOf))

		f.now = day(2024, 1, 11).Add(time.Minute)
		result, err = f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		require.Len(t, result.ExpiredBatches, 1)
		assert.Equal(t, d.ID, result.ExpiredBatches[0].BatchID)
	})

	t.Run("look-back window is measured from expiry", func(t *testing.T) {
		tests := []struct {
			name     string
			window   time.Duration
			bypassed bool
		}{
			{"unbounded", 0, true},
			{"pick inside the window", 7 * 24 * time.Hour, true},
			{"pick before the window", 2 * 24 * time.Hour, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f, milk, _, e := expiringFixture(t)
				f.spoilage.SetBypassDetection(true, tt.window)

				// E picked on 2024-01-05, D expires 2024-01-10
				_, err := f.consumption.DispatchForSale(f.ctx, appinv.DispatchForSaleRequest{
					ProductID: milk,
					Quantity:  qty("10"),
					SaleRef:   "INV-1",
					Plan:      []appinv.PlanLineInput{{BatchID: e.ID, Quantity: qty("10")}},
				})
				require.NoError(t, err)

				// Scan well after expiry
				f.now = day(2024, 1, 20)
				result, err := f.spoilage.ScanExpired(f.ctx, nil)
				require.NoError(t, err)
				require.Len(t, result.SpoilageRecords, 1)
				assert.Equal(t, tt.bypassed, result.SpoilageRecords[0].FifoBypassed)
			})
		}
	})

	t.Run("bypass detection can be switched off", func(t *testing.T) {
		f, milk, _, e := expiringFixture(t)
		f.spoilage.SetBypassDetection(false, 0)

		_, err := f.consumption.DispatchForSale(f.ctx, appinv.DispatchForSaleRequest{
			ProductID: milk,
			Quantity:  qty("10"),
			SaleRef:   "INV-1",
			Plan:      []appinv.PlanLineInput{{BatchID: e.ID, Quantity: qty("10")}},
		})
		require.NoError(t, err)

		f.now = day(2024, 1, 11)
		result, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		require.Len(t, result.SpoilageRecords, 1)
		assert.False(t, result.SpoilageRecords[0].FifoBypassed)
	})
}

func TestSpoilageService_Dispose(t *testing.T) {
	t.Run("writes off an expired batch through its expiry record", func(t *testing.T) {
		f, milk, d, _ := expiringFixture(t)
		f.now = day(2024, 1, 11)
		scan, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)
		require.Len(t, scan.SpoilageRecords, 1)
		expiryRecordID := scan.SpoilageRecords[0].ID

		_, err = f.spoilage.ApproveSpoilage(f.ctx, expiryRecordID)
		require.NoError(t, err)

		result, err := f.spoilage.Dispose(f.ctx, appinv.DisposeRequest{BatchID: d.ID, ActorRef: "qa-1"})
		require.NoError(t, err)

		assert.Equal(t, expiryRecordID, result.Spoilage.ID)
		assert.Equal(t, inventory.SpoilageStatusWrittenOff, result.Spoilage.Status)
		assert.NotNil(t, result.Spoilage.WrittenOffAt)
		assert.Equal(t, inventory.BatchStatusDisposed, result.Batch.Status)
		assertQty(t, "0", result.Batch.CurrentQuantity)
		require.NotNil(t, result.Consumption)
		assert.Equal(t, inventory.ConsumptionReasonSpoilage, result.Consumption.Reason)
		assert.Equal(t, expiryRecordID.String(), result.Consumption.ContextRef)
		assertQty(t, "100", result.Consumption.Quantity)
		assertQty(t, "50", f.onHand(milk))
		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeBatchDisposed), 1)

		_, err = f.spoilage.Dispose(f.ctx, appinv.DisposeRequest{BatchID: d.ID})
		assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	})

	t.Run("never-scanned batch gets a record and its reservations are released", func(t *testing.T) {
		f, milk, d, _ := expiringFixture(t)
		_, err := f.reservation.ReserveForOrder(f.ctx, appinv.ReserveForOrderRequest{
			OrderRef: "SO-1", MaterialID: milk, Quantity: qty("30"),
		})
		require.NoError(t, err)

		result, err := f.spoilage.Dispose(f.ctx, appinv.DisposeRequest{
			BatchID: d.ID,
			Reason:  inventory.SpoilageReasonContaminated,
			Notes:   "lab result 42",
		})
		require.NoError(t, err)

		assert.Equal(t, inventory.SpoilageReasonContaminated, result.Spoilage.Reason)
		assert.Equal(t, inventory.SpoilageStatusWrittenOff, result.Spoilage.Status)
		assertQty(t, "100", result.Spoilage.QuantitySpoiled)
		assert.Equal(t, inventory.BatchStatusDisposed, result.Batch.Status)
		assertQty(t, "0", result.Batch.ReservedQuantity)

		reservations, err := f.reservations.FindByOrder(f.ctx, "SO-1")
		require.NoError(t, err)
		require.Len(t, reservations, 1)
		assert.Equal(t, inventory.ReservationStatusReleased, reservations[0].Status)
	})

	t.Run("expired reason on an unexpired batch", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)

		_, err := f.spoilage.Dispose(f.ctx, appinv.DisposeRequest{BatchID: d.ID, Reason: inventory.SpoilageReasonExpired})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
	})

	t.Run("unknown batch", func(t *testing.T) {
		f := newLedgerFixture(t)

		_, err := f.spoilage.Dispose(f.ctx, appinv.DisposeRequest{BatchID: uuid.New()})
		assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
	})
}

func TestSpoilageService_RecordSpoilage(t *testing.T) {
	t.Run("partial spoilage keeps the batch allocatable", func(t *testing.T) {
		f, milk, d, _ := expiringFixture(t)

		result, err := f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
			BatchID:  d.ID,
			Quantity: qty("30"),
			Reason:   inventory.SpoilageReasonDamaged,
			Notes:    "forklift",
		})
		require.NoError(t, err)

		assertQty(t, "30", result.Spoilage.QuantitySpoiled)
		assertQty(t, "60", result.Spoilage.TotalLoss)
		assert.Equal(t, inventory.SpoilageStatusPending, result.Spoilage.Status)
		assertQty(t, "70", result.Batch.CurrentQuantity)
		assert.Equal(t, inventory.BatchStatusReceived, result.Batch.Status)
		require.NotNil(t, result.Consumption)
		assert.Equal(t, result.Spoilage.ID.String(), result.Consumption.ContextRef)
		assertQty(t, "120", f.onHand(milk))

		approved, err := f.spoilage.ApproveSpoilage(f.ctx, result.Spoilage.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.SpoilageStatusWrittenOff, approved.Status)
		assert.NotNil(t, approved.ApprovedAt)

		_, err = f.spoilage.ApproveSpoilage(f.ctx, result.Spoilage.ID)
		assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	})

	t.Run("spoiling the rest disposes the batch", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)

		result, err := f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
			BatchID:  d.ID,
			Quantity: qty("100"),
			Reason:   inventory.SpoilageReasonQualityFailure,
		})
		require.NoError(t, err)
		assert.Equal(t, inventory.BatchStatusDisposed, result.Batch.Status)
		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeBatchDisposed), 1)
	})

	t.Run("reserved stock cannot be spoiled", func(t *testing.T) {
		f, milk, d, _ := expiringFixture(t)
		_, err := f.reservation.ReserveForOrder(f.ctx, appinv.ReserveForOrderRequest{
			OrderRef: "SO-1", MaterialID: milk, Quantity: qty("80"),
		})
		require.NoError(t, err)

		_, err = f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
			BatchID:  d.ID,
			Quantity: qty("30"),
		})
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		assertQty(t, "100", f.batch(d.ID).CurrentQuantity)
	})

	t.Run("expired batches go through dispose", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)
		f.now = day(2024, 1, 11)
		_, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)

		_, err = f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
			BatchID:  d.ID,
			Quantity: qty("10"),
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	})

	t.Run("expired is not a manual reason", func(t *testing.T) {
		f, _, d, _ := expiringFixture(t)

		_, err := f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
			BatchID:  d.ID,
			Quantity: qty("10"),
			Reason:   inventory.SpoilageReasonExpired,
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
	})
}

type stubRenderer struct {
	rows int
}

func (r *stubRenderer) RenderSpoilageRegister(records []appinv.SpoilageRecordResponse, _ time.Time) ([]byte, error) {
	r.rows = len(records)
	return []byte("register"), nil
}

func (r *stubRenderer) ContentType() string   { return "application/octet-stream" }
func (r *stubRenderer) FileExtension() string { return ".bin" }

type stubArchive struct {
	keys []string
	err  error
}

func (a *stubArchive) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "s3://registers/" + key, nil
}

func TestSpoilageService_ExportSpoilageRegister(t *testing.T) {
	t.Run("renders and archives", func(t *testing.T) {
		f, _, _, _ := expiringFixture(t)
		f.now = day(2024, 2, 1)
		_, err := f.spoilage.ScanExpired(f.ctx, nil)
		require.NoError(t, err)

		renderer := &stubRenderer{}
		archive := &stubArchive{}
		f.spoilage.SetRegisterRenderer(renderer)
		f.spoilage.SetReportArchive(archive, "registers/")

		export, err := f.spoilage.ExportSpoilageRegister(f.ctx, appinv.SpoilageListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, export.Rows)
		assert.Equal(t, 2, renderer.rows)
		assert.Equal(t, "spoilage-register-20240201-000000.bin", export.FileName)
		require.Len(t, archive.keys, 1)
		assert.Equal(t, "registers/"+export.FileName, archive.keys[0])
		assert.Equal(t, "s3://registers/registers/"+export.FileName, export.Location)
	})

	t.Run("archive failure still returns the document", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.spoilage.SetRegisterRenderer(&stubRenderer{})
		f.spoilage.SetReportArchive(&stubArchive{err: errors.New("bucket gone")}, "")

		export, err := f.spoilage.ExportSpoilageRegister(f.ctx, appinv.SpoilageListFilter{})
		require.NoError(t, err)
		assert.Empty(t, export.Location)
		assert.Equal(t, []byte("register"), export.Content)
	})

	t.Run("without renderer", func(t *testing.T) {
		f := newLedgerFixture(t)

		_, err := f.spoilage.ExportSpoilageRegister(f.ctx, appinv.SpoilageListFilter{})
		assert.Error(t, err)
	})
}

func TestSpoilageService_ListSpoilage(t *testing.T) {
	f, _, d, _ := expiringFixture(t)
	f.now = day(2024, 2, 1)
	_, err := f.spoilage.ScanExpired(f.ctx, nil)
	require.NoError(t, err)

	page, err := f.spoilage.ListSpoilage(f.ctx, appinv.SpoilageListFilter{BatchID: &d.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "MILK-D", page.Items[0].BatchCode)

	page, err = f.spoilage.ListSpoilage(f.ctx, appinv.SpoilageListFilter{Reason: "expired", PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.TotalPages)
}
