package inventory

import (
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionReason says why quantity left a batch
type ConsumptionReason string

const (
	ConsumptionReasonProduction ConsumptionReason = "PRODUCTION"
	ConsumptionReasonSale       ConsumptionReason = "SALE"
	ConsumptionReasonSpoilage   ConsumptionReason = "SPOILAGE"
	ConsumptionReasonAdjustment ConsumptionReason = "ADJUSTMENT"
)

// IsValid checks if the reason is valid
func (r ConsumptionReason) IsValid() bool {
	switch r {
	case ConsumptionReasonProduction, ConsumptionReasonSale, ConsumptionReasonSpoilage, ConsumptionReasonAdjustment:
		return true
	}
	return false
}

// IsPick reports whether the consumption came from a FIFO pick (production or
// sale) rather than a write-off
func (r ConsumptionReason) IsPick() bool {
	return r == ConsumptionReasonProduction || r == ConsumptionReasonSale
}

// ConsumptionContext describes who consumed stock and for what
type ConsumptionContext struct {
	Reason     ConsumptionReason
	ContextRef string // production batch ref, sale id or disposal reference
	ActorRef   string
	Metadata   map[string]string
}

// Validate checks the context before any ledger row is touched
func (c ConsumptionContext) Validate() error {
	if !c.Reason.IsValid() {
		return invalidRequest("Invalid consumption reason")
	}
	if c.ContextRef == "" {
		return invalidRequest("Consuming context reference cannot be empty")
	}
	return nil
}

// ConsumptionRecord is one immutable line of the traceability log
type ConsumptionRecord struct {
	shared.BaseEntity
	BatchID             uuid.UUID
	BatchCode           string
	MaterialID          uuid.UUID
	BatchReceivedDate   time.Time
	Quantity            decimal.Decimal
	UnitCost            decimal.Decimal
	TotalCost           decimal.Decimal
	Reason              ConsumptionReason
	ContextRef          string
	ReservationID       *uuid.UUID
	ActorRef            string
	ConsumedAt          time.Time
	BatchRemainingAfter decimal.Decimal
	Metadata            map[string]string
}

// NewConsumptionRecord builds the record for a consumption that was just
// applied to batch. It must be called after the batch mutation so that the
// remaining quantity is captured.
func NewConsumptionRecord(batch *Batch, quantity decimal.Decimal, cctx ConsumptionContext, reservationID *uuid.UUID, at time.Time) *ConsumptionRecord {
	return &ConsumptionRecord{
		BaseEntity:          shared.NewOrderedBaseEntity(),
		BatchID:             batch.ID,
		BatchCode:           batch.BatchCode,
		MaterialID:          batch.MaterialID,
		BatchReceivedDate:   batch.ReceivedDate,
		Quantity:            quantity,
		UnitCost:            batch.UnitCost,
		TotalCost:           quantity.Mul(batch.UnitCost),
		Reason:              cctx.Reason,
		ContextRef:          cctx.ContextRef,
		ReservationID:       reservationID,
		ActorRef:            cctx.ActorRef,
		ConsumedAt:          at,
		BatchRemainingAfter: batch.CurrentQuantity,
		Metadata:            cctx.Metadata,
	}
}

// SumConsumed returns the total quantity and cost of a set of records
func SumConsumed(records []ConsumptionRecord) (quantity, cost decimal.Decimal) {
	quantity, cost = decimal.Zero, decimal.Zero
	for _, r := range records {
		quantity = quantity.Add(r.Quantity)
		cost = cost.Add(r.TotalCost)
	}
	return quantity, cost
}
