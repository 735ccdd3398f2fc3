package inventory

import (
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeBatchReceived         = "BatchReceived"
	EventTypeBatchRejected         = "BatchRejected"
	EventTypeStockReserved         = "StockReserved"
	EventTypeReservationReleased   = "ReservationReleased"
	EventTypeStockConsumed         = "StockConsumed"
	EventTypeBatchExpired          = "BatchExpired"
	EventTypeSpoilageRecorded      = "SpoilageRecorded"
	EventTypeBatchDisposed         = "BatchDisposed"
	EventTypeFifoViolationDetected = "FifoViolationDetected"
)

// BatchReceivedEvent is raised when a batch enters the ledger
type BatchReceivedEvent struct {
	shared.BaseDomainEvent
	MaterialID   uuid.UUID       `json:"material_id"`
	MaterialKind MaterialKind    `json:"material_kind"`
	BatchCode    string          `json:"batch_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	SourceType   BatchSourceType `json:"source_type"`
}

// NewBatchReceivedEvent creates a new BatchReceivedEvent
func NewBatchReceivedEvent(b *Batch) *BatchReceivedEvent {
	return &BatchReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchReceived, AggregateTypeBatch, b.ID),
		MaterialID:      b.MaterialID,
		MaterialKind:    b.MaterialKind,
		BatchCode:       b.BatchCode,
		Quantity:        b.QuantityReceived,
		UnitCost:        b.UnitCost,
		SourceType:      b.SourceType,
	}
}

// BatchRejectedEvent is raised when a batch fails the quality gate
type BatchRejectedEvent struct {
	shared.BaseDomainEvent
	MaterialID uuid.UUID       `json:"material_id"`
	BatchCode  string          `json:"batch_code"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason,omitempty"`
}

// NewBatchRejectedEvent creates a new BatchRejectedEvent
func NewBatchRejectedEvent(b *Batch, quantity decimal.Decimal, reason string) *BatchRejectedEvent {
	return &BatchRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchRejected, AggregateTypeBatch, b.ID),
		MaterialID:      b.MaterialID,
		BatchCode:       b.BatchCode,
		Quantity:        quantity,
		Reason:          reason,
	}
}

// StockReservedEvent is raised once per reserved plan
type StockReservedEvent struct {
	shared.BaseDomainEvent
	MaterialID     uuid.UUID       `json:"material_id"`
	OrderRef       string          `json:"order_ref"`
	Quantity       decimal.Decimal `json:"quantity"`
	ReservationIDs []uuid.UUID     `json:"reservation_ids"`
}

// NewStockReservedEvent creates a new StockReservedEvent
func NewStockReservedEvent(materialID uuid.UUID, orderRef string, quantity decimal.Decimal, reservationIDs []uuid.UUID) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReserved, AggregateTypeBatch, materialID),
		MaterialID:      materialID,
		OrderRef:        orderRef,
		Quantity:        quantity,
		ReservationIDs:  reservationIDs,
	}
}

// ReservationReleasedEvent is raised when a reservation stops holding stock
// without being consumed
type ReservationReleasedEvent struct {
	shared.BaseDomainEvent
	BatchID  uuid.UUID         `json:"batch_id"`
	OrderRef string            `json:"order_ref"`
	Quantity decimal.Decimal   `json:"quantity"`
	Status   ReservationStatus `json:"status"`
}

// NewReservationReleasedEvent creates a new ReservationReleasedEvent
func NewReservationReleasedEvent(r *Reservation) *ReservationReleasedEvent {
	return &ReservationReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationReleased, AggregateTypeBatch, r.BatchID),
		BatchID:         r.BatchID,
		OrderRef:        r.OrderRef,
		Quantity:        r.Quantity,
		Status:          r.Status,
	}
}

// StockConsumedEvent is raised once per committed consumption
type StockConsumedEvent struct {
	shared.BaseDomainEvent
	MaterialID uuid.UUID         `json:"material_id"`
	Reason     ConsumptionReason `json:"reason"`
	ContextRef string            `json:"context_ref"`
	Quantity   decimal.Decimal   `json:"quantity"`
	TotalCost  decimal.Decimal   `json:"total_cost"`
	BatchCodes []string          `json:"batch_codes"`
}

// NewStockConsumedEvent creates a new StockConsumedEvent
func NewStockConsumedEvent(materialID uuid.UUID, cctx ConsumptionContext, records []*ConsumptionRecord) *StockConsumedEvent {
	quantity, cost := decimal.Zero, decimal.Zero
	codes := make([]string, 0, len(records))
	for _, r := range records {
		quantity = quantity.Add(r.Quantity)
		cost = cost.Add(r.TotalCost)
		codes = append(codes, r.BatchCode)
	}
	return &StockConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockConsumed, AggregateTypeBatch, materialID),
		MaterialID:      materialID,
		Reason:          cctx.Reason,
		ContextRef:      cctx.ContextRef,
		Quantity:        quantity,
		TotalCost:       cost,
		BatchCodes:      codes,
	}
}

// BatchExpiredEvent is raised when the expiry scan moves a batch to EXPIRED
type BatchExpiredEvent struct {
	shared.BaseDomainEvent
	MaterialID       uuid.UUID       `json:"material_id"`
	BatchCode        string          `json:"batch_code"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReleasedReserved decimal.Decimal `json:"released_reserved"`
}

// NewBatchExpiredEvent creates a new BatchExpiredEvent
func NewBatchExpiredEvent(b *Batch, releasedReserved decimal.Decimal) *BatchExpiredEvent {
	return &BatchExpiredEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeBatchExpired, AggregateTypeBatch, b.ID),
		MaterialID:       b.MaterialID,
		BatchCode:        b.BatchCode,
		Quantity:         b.CurrentQuantity,
		ReleasedReserved: releasedReserved,
	}
}

// SpoilageRecordedEvent is raised for every new spoilage record
type SpoilageRecordedEvent struct {
	shared.BaseDomainEvent
	SpoilageID   uuid.UUID       `json:"spoilage_id"`
	MaterialID   uuid.UUID       `json:"material_id"`
	BatchCode    string          `json:"batch_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalLoss    decimal.Decimal `json:"total_loss"`
	Reason       SpoilageReason  `json:"reason"`
	FifoBypassed bool            `json:"fifo_bypassed"`
}

// NewSpoilageRecordedEvent creates a new SpoilageRecordedEvent
func NewSpoilageRecordedEvent(s *SpoilageRecord) *SpoilageRecordedEvent {
	return &SpoilageRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSpoilageRecorded, AggregateTypeBatch, s.BatchID),
		SpoilageID:      s.ID,
		MaterialID:      s.MaterialID,
		BatchCode:       s.BatchCode,
		Quantity:        s.QuantitySpoiled,
		TotalLoss:       s.TotalLoss,
		Reason:          s.Reason,
		FifoBypassed:    s.FifoBypassed,
	}
}

// BatchDisposedEvent is raised when a batch is written off
type BatchDisposedEvent struct {
	shared.BaseDomainEvent
	MaterialID uuid.UUID       `json:"material_id"`
	BatchCode  string          `json:"batch_code"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     SpoilageReason  `json:"reason"`
}

// NewBatchDisposedEvent creates a new BatchDisposedEvent
func NewBatchDisposedEvent(b *Batch, quantity decimal.Decimal, reason SpoilageReason) *BatchDisposedEvent {
	return &BatchDisposedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchDisposed, AggregateTypeBatch, b.ID),
		MaterialID:      b.MaterialID,
		BatchCode:       b.BatchCode,
		Quantity:        quantity,
		Reason:          reason,
	}
}

// FifoViolationDetectedEvent is raised when a pick scan does not match
type FifoViolationDetectedEvent struct {
	shared.BaseDomainEvent
	MaterialID   uuid.UUID          `json:"material_id"`
	ScannedCode  string             `json:"scanned_code"`
	ExpectedCode string             `json:"expected_code"`
	Reason       ScanMismatchReason `json:"reason"`
}

// NewFifoViolationDetectedEvent creates a new FifoViolationDetectedEvent
func NewFifoViolationDetectedEvent(materialID uuid.UUID, r *ScanValidationResult) *FifoViolationDetectedEvent {
	return &FifoViolationDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFifoViolationDetected, AggregateTypeBatch, r.ExpectedBatchID),
		MaterialID:      materialID,
		ScannedCode:     r.ScannedCode,
		ExpectedCode:    r.ExpectedCode,
		Reason:          r.Reason,
	}
}
