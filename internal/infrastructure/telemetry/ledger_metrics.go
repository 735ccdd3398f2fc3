package telemetry

import (
	"context"
	"errors"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics turns ledger events into counters. It is subscribed to the
// event bus, so it only sees committed changes.
type LedgerMetrics struct {
	batchesReceived  metric.Int64Counter
	quantityReceived metric.Float64Counter
	quantityConsumed metric.Float64Counter
	consumptionCost  metric.Float64Counter
	reservations     metric.Int64Counter
	batchesExpired   metric.Int64Counter
	spoilageLoss     metric.Float64Counter
	batchesDisposed  metric.Int64Counter
	batchesRejected  metric.Int64Counter
	fifoViolations   metric.Int64Counter
}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}
	var err, e error

	m.batchesReceived, e = meter.Int64Counter("dairy_ledger_batches_received_total",
		metric.WithDescription("Batches received into the ledger"))
	err = errors.Join(err, e)
	m.quantityReceived, e = meter.Float64Counter("dairy_ledger_quantity_received",
		metric.WithDescription("Quantity received, in material units"))
	err = errors.Join(err, e)
	m.quantityConsumed, e = meter.Float64Counter("dairy_ledger_quantity_consumed",
		metric.WithDescription("Quantity consumed by reason"))
	err = errors.Join(err, e)
	m.consumptionCost, e = meter.Float64Counter("dairy_ledger_consumption_cost",
		metric.WithDescription("Cost of consumed stock by reason"))
	err = errors.Join(err, e)
	m.reservations, e = meter.Int64Counter("dairy_ledger_reservation_events_total",
		metric.WithDescription("Reservation plans created and reservations released, by outcome"))
	err = errors.Join(err, e)
	m.batchesExpired, e = meter.Int64Counter("dairy_ledger_batches_expired_total",
		metric.WithDescription("Batches moved to EXPIRED by the expiry scan"))
	err = errors.Join(err, e)
	m.spoilageLoss, e = meter.Float64Counter("dairy_ledger_spoilage_loss",
		metric.WithDescription("Value of spoiled stock by reason"))
	err = errors.Join(err, e)
	m.batchesDisposed, e = meter.Int64Counter("dairy_ledger_batches_disposed_total",
		metric.WithDescription("Batches written off"))
	err = errors.Join(err, e)
	m.batchesRejected, e = meter.Int64Counter("dairy_ledger_batches_rejected_total",
		metric.WithDescription("Batches rejected at the quality gate"))
	err = errors.Join(err, e)
	m.fifoViolations, e = meter.Int64Counter("dairy_ledger_fifo_violations_total",
		metric.WithDescription("Pick scans that did not match the FIFO batch"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return m, nil
}

// EventTypes implements shared.EventHandler
func (m *LedgerMetrics) EventTypes() []string {
	return []string{
		inventory.EventTypeBatchReceived,
		inventory.EventTypeBatchRejected,
		inventory.EventTypeStockReserved,
		inventory.EventTypeReservationReleased,
		inventory.EventTypeStockConsumed,
		inventory.EventTypeBatchExpired,
		inventory.EventTypeSpoilageRecorded,
		inventory.EventTypeBatchDisposed,
		inventory.EventTypeFifoViolationDetected,
	}
}

// Handle implements shared.EventHandler
func (m *LedgerMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *inventory.BatchReceivedEvent:
		attrs := metric.WithAttributes(
			attribute.String("material_kind", string(e.MaterialKind)),
			attribute.String("source_type", string(e.SourceType)),
		)
		m.batchesReceived.Add(ctx, 1, attrs)
		m.quantityReceived.Add(ctx, e.Quantity.InexactFloat64(), attrs)
	case *inventory.BatchRejectedEvent:
		m.batchesRejected.Add(ctx, 1)
	case *inventory.StockReservedEvent:
		m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "RESERVED")))
	case *inventory.ReservationReleasedEvent:
		m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(e.Status))))
	case *inventory.StockConsumedEvent:
		attrs := metric.WithAttributes(attribute.String("reason", string(e.Reason)))
		m.quantityConsumed.Add(ctx, e.Quantity.InexactFloat64(), attrs)
		m.consumptionCost.Add(ctx, e.TotalCost.InexactFloat64(), attrs)
	case *inventory.BatchExpiredEvent:
		m.batchesExpired.Add(ctx, 1)
	case *inventory.SpoilageRecordedEvent:
		m.spoilageLoss.Add(ctx, e.TotalLoss.InexactFloat64(), metric.WithAttributes(
			attribute.String("reason", string(e.Reason)),
			attribute.Bool("fifo_bypassed", e.FifoBypassed),
		))
	case *inventory.BatchDisposedEvent:
		m.batchesDisposed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(e.Reason))))
	case *inventory.FifoViolationDetectedEvent:
		m.fifoViolations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(e.Reason))))
	}
	return nil
}

var _ shared.EventHandler = (*LedgerMetrics)(nil)
