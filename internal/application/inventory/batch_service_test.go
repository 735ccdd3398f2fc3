package inventory_test

import (
	"testing"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchService_RegisterMaterial(t *testing.T) {
	f := newLedgerFixture(t)

	m, err := f.batches.RegisterMaterial(f.ctx, appinv.RegisterMaterialRequest{
		Code: " milk-raw ", Name: "Raw milk", Kind: inventory.MaterialKindRaw, Unit: "L", ShelfLifeDays: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "MILK-RAW", m.Code)
	assertQty(t, "0", m.OnHandQuantity)

	_, err = f.batches.RegisterMaterial(f.ctx, appinv.RegisterMaterialRequest{
		Code: "MILK-RAW", Name: "Again", Kind: inventory.MaterialKindRaw,
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	_, err = f.batches.RegisterMaterial(f.ctx, appinv.RegisterMaterialRequest{
		Code: "X", Name: "Bad kind", Kind: "LIQUID",
	})
	assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
}

func TestBatchService_ReceiveBatch(t *testing.T) {
	t.Run("generates codes per supplier and day", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)

		first, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
			MaterialID: milk, SourceRef: "farm 7", Quantity: qty("500"), UnitCost: qty("0.45"),
		})
		require.NoError(t, err)
		second, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
			MaterialID: milk, SourceRef: "farm 7", Quantity: qty("300"), UnitCost: qty("0.45"),
		})
		require.NoError(t, err)

		assert.Equal(t, "RM-FARM7-20240105-0001", first.BatchCode)
		assert.Equal(t, "RM-FARM7-20240105-0002", second.BatchCode)
		assert.Equal(t, inventory.BatchStatusReceived, first.Status)
		assert.Equal(t, f.now, first.ReceivedDate)
		assertQty(t, "800", f.onHand(milk))
		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeBatchReceived), 2)
	})

	t.Run("expiry defaults to the material shelf life", func(t *testing.T) {
		f := newLedgerFixture(t)
		m, err := f.batches.RegisterMaterial(f.ctx, appinv.RegisterMaterialRequest{
			Code: "CREAM", Name: "Cream", Kind: inventory.MaterialKindRaw, ShelfLifeDays: 7,
		})
		require.NoError(t, err)

		b, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
			MaterialID: m.ID, BatchCode: "CR-1", Quantity: qty("10"),
		})
		require.NoError(t, err)
		require.NotNil(t, b.ExpiryDate)
		assert.Equal(t, day(2024, 1, 12), *b.ExpiryDate)
	})

	t.Run("duplicate code", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		f.receive(milk, "MILK-A", day(2024, 1, 1), "10", nil)

		_, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
			MaterialID: milk, BatchCode: "milk-a", Quantity: qty("10"),
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assertQty(t, "10", f.onHand(milk))
	})

	t.Run("rejects bad input", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)

		_, err := f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{MaterialID: milk, Quantity: qty("0")})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)

		_, err = f.batches.ReceiveBatch(f.ctx, appinv.ReceiveBatchRequest{
			MaterialID: milk, Quantity: qty("1"), SourceType: inventory.BatchSourceProduction,
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
	})
}

func TestBatchService_RecordProductionOutput(t *testing.T) {
	f := newLedgerFixture(t)
	milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
	yogurt := f.registerMaterial("YOG-500", inventory.MaterialKindFinished)
	f.receive(milk, "MILK-A", day(2024, 1, 1), "100", nil)

	_, err := f.consumption.IssueForProduction(f.ctx, appinv.IssueForProductionRequest{
		MaterialID: milk, Quantity: qty("60"), ProductionRef: "PR-7",
	})
	require.NoError(t, err)

	fg, err := f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
		MaterialID: yogurt, ProductionRef: "PR-7", Quantity: qty("30"),
	})
	require.NoError(t, err)

	assert.Equal(t, "FG-20240105-0001", fg.BatchCode)
	assert.Equal(t, inventory.BatchSourceProduction, fg.SourceType)
	assert.Equal(t, "PR-7", fg.SourceRef)
	assertQty(t, "4", fg.UnitCost)
	assertQty(t, "30", f.onHand(yogurt))

	_, err = f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
		MaterialID: yogurt, ProductionRef: "PR-unknown", Quantity: qty("1"),
	})
	assert.ErrorIs(t, err, inventory.ErrInvalidRequest)

	_, err = f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
		MaterialID: milk, ProductionRef: "PR-7", Quantity: qty("1"),
	})
	assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
}

func TestBatchService_RecordProductionOutput_CostCarriedOnce(t *testing.T) {
	t.Run("second output of a fully costed run is refused", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		yogurt := f.registerMaterial("YOG-500", inventory.MaterialKindFinished)
		f.receive(milk, "MILK-A", day(2024, 1, 1), "100", nil)

		_, err := f.consumption.IssueForProduction(f.ctx, appinv.IssueForProductionRequest{
			MaterialID: milk, Quantity: qty("60"), ProductionRef: "PR-7",
		})
		require.NoError(t, err)

		first, err := f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
			MaterialID: yogurt, ProductionRef: "PR-7", Quantity: qty("30"),
		})
		require.NoError(t, err)
		assertQty(t, "4", first.UnitCost)

		_, err = f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
			MaterialID: yogurt, ProductionRef: "PR-7", Quantity: qty("30"),
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
		assertQty(t, "30", f.onHand(yogurt))
	})

	t.Run("later output carries only newly issued cost", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		yogurt := f.registerMaterial("YOG-500", inventory.MaterialKindFinished)
		f.receive(milk, "MILK-A", day(2024, 1, 1), "100", nil)

		issue := func(quantity string) {
			_, err := f.consumption.IssueForProduction(f.ctx, appinv.IssueForProductionRequest{
				MaterialID: milk, Quantity: qty(quantity), ProductionRef: "PR-8",
			})
			require.NoError(t, err)
		}
		output := func(quantity string) *appinv.BatchResponse {
			fg, err := f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
				MaterialID: yogurt, ProductionRef: "PR-8", Quantity: qty(quantity),
			})
			require.NoError(t, err)
			return fg
		}

		issue("60")
		first := output("30")
		issue("20")
		second := output("10")

		assertQty(t, "4", first.UnitCost)
		assertQty(t, "4", second.UnitCost)
		total := first.QuantityReceived.Mul(first.UnitCost).Add(second.QuantityReceived.Mul(second.UnitCost))
		assertQty(t, "160", total)
	})
}

func TestBatchService_QualityGate(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		a := f.receive(milk, "MILK-A", day(2024, 1, 1), "10", nil)

		approved, err := f.batches.ApproveBatch(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.BatchStatusApproved, approved.Status)

		_, err = f.batches.ApproveBatch(f.ctx, a.ID)
		assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	})

	t.Run("reject removes stock and releases holds", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		a := f.receive(milk, "MILK-A", day(2024, 1, 1), "100", nil)
		f.receive(milk, "MILK-B", day(2024, 1, 2), "50", nil)

		_, err := f.reservation.ReserveForOrder(f.ctx, appinv.ReserveForOrderRequest{
			OrderRef: "SO-1", MaterialID: milk, Quantity: qty("40"),
		})
		require.NoError(t, err)

		rejected, err := f.batches.RejectBatch(f.ctx, appinv.RejectBatchRequest{
			BatchID: a.ID, Reason: "antibiotics detected", ActorRef: "qa-1",
		})
		require.NoError(t, err)

		assert.Equal(t, inventory.BatchStatusRejected, rejected.Status)
		assertQty(t, "0", rejected.CurrentQuantity)
		assertQty(t, "0", rejected.ReservedQuantity)
		assertQty(t, "50", f.onHand(milk))

		reservations, err := f.reservations.FindByOrder(f.ctx, "SO-1")
		require.NoError(t, err)
		require.Len(t, reservations, 1)
		assert.Equal(t, inventory.ReservationStatusReleased, reservations[0].Status)

		records, err := f.consumptions.FindByBatch(f.ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, inventory.ConsumptionReasonAdjustment, records[0].Reason)
		assertQty(t, "100", records[0].Quantity)
		assert.Len(t, f.publisher.GetEventsByType(inventory.EventTypeBatchRejected), 1)
	})

	t.Run("reject needs a reason", func(t *testing.T) {
		f := newLedgerFixture(t)
		milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
		a := f.receive(milk, "MILK-A", day(2024, 1, 1), "10", nil)

		_, err := f.batches.RejectBatch(f.ctx, appinv.RejectBatchRequest{BatchID: a.ID})
		assert.ErrorIs(t, err, inventory.ErrInvalidRequest)
	})
}

func TestBatchService_ListBatches(t *testing.T) {
	f := newLedgerFixture(t)
	milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
	cream := f.registerMaterial("CREAM", inventory.MaterialKindRaw)
	f.receive(milk, "MILK-A", day(2024, 1, 1), "10", nil)
	f.receive(milk, "MILK-B", day(2024, 1, 2), "10", nil)
	f.receive(cream, "CREAM-A", day(2024, 1, 2), "10", nil)

	page, err := f.batches.ListBatches(f.ctx, appinv.BatchListFilter{MaterialID: &milk})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 2)

	page, err = f.batches.ListBatches(f.ctx, appinv.BatchListFilter{Status: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}
