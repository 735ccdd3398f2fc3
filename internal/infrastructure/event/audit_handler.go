package event

import (
	"context"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes one structured log line per ledger event. Stock
// loss and FIFO violations are logged at warn so they surface in alerting.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates the handler
func NewAuditLogHandler(l *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: l.Named("ledger.audit")}
}

// EventTypes subscribes to every event
func (h *AuditLogHandler) EventTypes() []string { return nil }

// Handle implements shared.EventHandler
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}
	if rid := logger.GetRequestID(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if actor := logger.GetActor(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}

	warn := false
	switch e := event.(type) {
	case *inventory.BatchReceivedEvent:
		fields = append(fields, zap.String("batch_code", e.BatchCode), zap.String("quantity", e.Quantity.String()))
	case *inventory.BatchRejectedEvent:
		fields = append(fields, zap.String("batch_code", e.BatchCode), zap.String("quantity", e.Quantity.String()), zap.String("reason", e.Reason))
		warn = true
	case *inventory.StockReservedEvent:
		fields = append(fields, zap.String("order_ref", e.OrderRef), zap.String("quantity", e.Quantity.String()))
	case *inventory.ReservationReleasedEvent:
		fields = append(fields, zap.String("order_ref", e.OrderRef), zap.String("status", string(e.Status)))
	case *inventory.StockConsumedEvent:
		fields = append(fields,
			zap.String("reason", string(e.Reason)),
			zap.String("context_ref", e.ContextRef),
			zap.String("quantity", e.Quantity.String()),
			zap.Strings("batch_codes", e.BatchCodes),
		)
	case *inventory.BatchExpiredEvent:
		fields = append(fields, zap.String("batch_code", e.BatchCode), zap.String("quantity", e.Quantity.String()))
		warn = true
	case *inventory.SpoilageRecordedEvent:
		fields = append(fields,
			zap.String("batch_code", e.BatchCode),
			zap.String("reason", string(e.Reason)),
			zap.String("total_loss", e.TotalLoss.String()),
			zap.Bool("fifo_bypassed", e.FifoBypassed),
		)
		warn = e.FifoBypassed
	case *inventory.BatchDisposedEvent:
		fields = append(fields, zap.String("batch_code", e.BatchCode), zap.String("quantity", e.Quantity.String()))
	case *inventory.FifoViolationDetectedEvent:
		fields = append(fields,
			zap.String("scanned_code", e.ScannedCode),
			zap.String("expected_code", e.ExpectedCode),
			zap.String("reason", string(e.Reason)),
		)
		warn = true
	}

	if warn {
		h.logger.Warn("ledger event", fields...)
	} else {
		h.logger.Info("ledger event", fields...)
	}
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
