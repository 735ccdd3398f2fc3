package inventory_test

import (
	"testing"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceabilityService_GetTraceability(t *testing.T) {
	f := newLedgerFixture(t)
	milk := f.registerMaterial("MILK", inventory.MaterialKindRaw)
	yogurt := f.registerMaterial("YOG-500", inventory.MaterialKindFinished)
	a := f.receive(milk, "MILK-A", day(2024, 1, 1), "100", nil)

	_, err := f.consumption.IssueForProduction(f.ctx, appinv.IssueForProductionRequest{
		MaterialID: milk, Quantity: qty("60"), ProductionRef: "PR-7",
	})
	require.NoError(t, err)
	fg, err := f.batches.RecordProductionOutput(f.ctx, appinv.RecordProductionOutputRequest{
		MaterialID: yogurt, ProductionRef: "PR-7", Quantity: qty("30"),
	})
	require.NoError(t, err)
	_, err = f.consumption.DispatchForSale(f.ctx, appinv.DispatchForSaleRequest{
		ProductID: yogurt, Quantity: qty("5"), SaleRef: "INV-1",
	})
	require.NoError(t, err)
	_, err = f.spoilage.RecordSpoilage(f.ctx, appinv.RecordSpoilageRequest{
		BatchID: a.ID, Quantity: qty("15"), Reason: inventory.SpoilageReasonDamaged,
	})
	require.NoError(t, err)
	_, err = f.reservation.ReserveForOrder(f.ctx, appinv.ReserveForOrderRequest{
		OrderRef: "SO-3", MaterialID: milk, Quantity: qty("5"),
	})
	require.NoError(t, err)

	t.Run("raw batch", func(t *testing.T) {
		report, err := f.traceability.GetTraceability(f.ctx, "milk-a")
		require.NoError(t, err)

		assert.Equal(t, a.ID, report.Batch.ID)
		assertQty(t, "60", report.Summary.ConsumedProduction)
		assertQty(t, "0", report.Summary.ConsumedSale)
		assertQty(t, "15", report.Summary.Spoiled)
		assertQty(t, "5", report.Summary.Reserved)
		assertQty(t, "25", report.Summary.Remaining)
		assert.Len(t, report.Consumptions, 2)
		assert.Len(t, report.Reservations, 1)
		assert.Len(t, report.Spoilage, 1)
		require.Len(t, report.Downstream, 1)
		assert.Equal(t, fg.ID, report.Downstream[0].ID)
		assert.Empty(t, report.Ingredients)
	})

	t.Run("finished batch", func(t *testing.T) {
		report, err := f.traceability.GetTraceability(f.ctx, fg.BatchCode)
		require.NoError(t, err)

		assertQty(t, "5", report.Summary.ConsumedSale)
		assertQty(t, "25", report.Summary.Remaining)
		require.Len(t, report.Ingredients, 1)
		assert.Equal(t, "MILK-A", report.Ingredients[0].BatchCode)
		assertQty(t, "60", report.Ingredients[0].Quantity)
		assert.Empty(t, report.Downstream)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.traceability.GetTraceability(f.ctx, "NOPE")
		assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
	})
}
