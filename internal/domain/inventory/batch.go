package inventory

import (
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeBatch is the aggregate type name used on batch events
const AggregateTypeBatch = "Batch"

// BatchStatus is the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusReceived BatchStatus = "RECEIVED"
	BatchStatusApproved BatchStatus = "APPROVED"
	BatchStatusConsumed BatchStatus = "CONSUMED"
	BatchStatusExpired  BatchStatus = "EXPIRED"
	BatchStatusDisposed BatchStatus = "DISPOSED"
	BatchStatusRejected BatchStatus = "REJECTED"
)

// IsValid checks if the status is valid
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusReceived, BatchStatusApproved, BatchStatusConsumed,
		BatchStatusExpired, BatchStatusDisposed, BatchStatusRejected:
		return true
	}
	return false
}

// IsAllocatable reports whether stock in this status may be allocated
func (s BatchStatus) IsAllocatable() bool {
	return s == BatchStatusReceived || s == BatchStatusApproved
}

// IsTerminal reports whether no further quantity movement is possible
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusConsumed, BatchStatusDisposed, BatchStatusRejected:
		return true
	}
	return false
}

// String returns the string representation
func (s BatchStatus) String() string {
	return string(s)
}

// BatchSourceType records where a batch came from
type BatchSourceType string

const (
	BatchSourceRawReceipt      BatchSourceType = "RAW_RECEIPT"
	BatchSourcePurchaseReceipt BatchSourceType = "PURCHASE_RECEIPT"
	BatchSourceProduction      BatchSourceType = "PRODUCTION"
	BatchSourceAdjustment      BatchSourceType = "ADJUSTMENT"
)

// IsValid checks if the source type is valid
func (t BatchSourceType) IsValid() bool {
	switch t {
	case BatchSourceRawReceipt, BatchSourcePurchaseReceipt, BatchSourceProduction, BatchSourceAdjustment:
		return true
	}
	return false
}

// Batch is a dated, costed lot of a single material. It is the only place
// where current and reserved quantities change; every mutator keeps
// 0 <= reserved <= current <= received and bumps the version.
type Batch struct {
	shared.BaseAggregateRoot
	MaterialID       uuid.UUID
	MaterialKind     MaterialKind
	BatchCode        string
	SourceType       BatchSourceType
	SourceRef        string
	QuantityReceived decimal.Decimal
	CurrentQuantity  decimal.Decimal
	ReservedQuantity decimal.Decimal
	UnitCost         decimal.Decimal
	ReceivedDate     time.Time
	ProductionDate   *time.Time
	ExpiryDate       *time.Time
	Status           BatchStatus
	StorageLocation  string
}

// NewBatchParams holds the inputs for receiving a batch
type NewBatchParams struct {
	MaterialID      uuid.UUID
	MaterialKind    MaterialKind
	BatchCode       string
	SourceType      BatchSourceType
	SourceRef       string
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	ReceivedDate    time.Time
	ProductionDate  *time.Time
	ExpiryDate      *time.Time
	StorageLocation string
}

// NewBatch creates a batch in RECEIVED status
func NewBatch(p NewBatchParams) (*Batch, error) {
	if p.MaterialID == uuid.Nil {
		return nil, invalidRequest("Material ID cannot be empty")
	}
	if !p.MaterialKind.IsValid() {
		return nil, invalidRequest("Material kind must be RAW or FINISHED")
	}
	if strings.TrimSpace(p.BatchCode) == "" {
		return nil, invalidRequest("Batch code cannot be empty")
	}
	if !p.SourceType.IsValid() {
		return nil, invalidRequest("Invalid batch source type")
	}
	if !p.Quantity.IsPositive() {
		return nil, invalidRequest("Received quantity must be positive")
	}
	if p.UnitCost.IsNegative() {
		return nil, invalidRequest("Unit cost cannot be negative")
	}
	if p.ReceivedDate.IsZero() {
		return nil, invalidRequest("Received date is required")
	}
	if p.ExpiryDate != nil && p.ExpiryDate.Before(p.ReceivedDate) {
		return nil, invalidRequest("Expiry date cannot be before the received date")
	}
	if p.ProductionDate != nil && p.ExpiryDate != nil && p.ExpiryDate.Before(*p.ProductionDate) {
		return nil, invalidRequest("Expiry date cannot be before the production date")
	}

	b := &Batch{
		BaseAggregateRoot: shared.NewOrderedAggregateRoot(),
		MaterialID:        p.MaterialID,
		MaterialKind:      p.MaterialKind,
		BatchCode:         p.BatchCode,
		SourceType:        p.SourceType,
		SourceRef:         p.SourceRef,
		QuantityReceived:  p.Quantity,
		CurrentQuantity:   p.Quantity,
		ReservedQuantity:  decimal.Zero,
		UnitCost:          p.UnitCost,
		ReceivedDate:      p.ReceivedDate,
		ProductionDate:    p.ProductionDate,
		ExpiryDate:        p.ExpiryDate,
		Status:            BatchStatusReceived,
		StorageLocation:   p.StorageLocation,
	}
	b.AddDomainEvent(NewBatchReceivedEvent(b))
	return b, nil
}

// AvailableQuantity returns current minus reserved, never negative
func (b *Batch) AvailableQuantity() decimal.Decimal {
	available := b.CurrentQuantity.Sub(b.ReservedQuantity)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// IsExpiredAt reports whether the batch is unusable at asOf (expiry_date <= asOf)
func (b *Batch) IsExpiredAt(asOf time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return !b.ExpiryDate.After(asOf)
}

// IsPastExpiry reports whether the expiry scan should pick the batch up (expiry_date < asOf)
func (b *Batch) IsPastExpiry(asOf time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(asOf)
}

// IsEligibleAt reports whether the allocator may draw from this batch
func (b *Batch) IsEligibleAt(asOf time.Time) bool {
	return b.Status.IsAllocatable() && !b.IsExpiredAt(asOf) && b.AvailableQuantity().IsPositive()
}

// TotalValue returns the value of the remaining quantity
func (b *Batch) TotalValue() decimal.Decimal {
	return b.CurrentQuantity.Mul(b.UnitCost)
}

// Approve passes the quality gate
func (b *Batch) Approve() error {
	if b.Status != BatchStatusReceived {
		return b.transitionError(BatchStatusApproved)
	}
	b.Status = BatchStatusApproved
	b.touch()
	return nil
}

// Reject fails the quality gate. The remaining quantity leaves the ledger and
// any reserved quantity is dropped; the caller releases the reservation rows.
func (b *Batch) Reject() (removed decimal.Decimal, err error) {
	if !b.Status.IsAllocatable() {
		return decimal.Zero, b.transitionError(BatchStatusRejected)
	}
	removed = b.CurrentQuantity
	b.CurrentQuantity = decimal.Zero
	b.ReservedQuantity = decimal.Zero
	b.Status = BatchStatusRejected
	b.touch()
	return removed, nil
}

// Reserve places a soft lock on quantity of this batch
func (b *Batch) Reserve(quantity decimal.Decimal, asOf time.Time) error {
	if !quantity.IsPositive() {
		return invalidRequest("Reserved quantity must be positive")
	}
	if !b.Status.IsAllocatable() || b.IsExpiredAt(asOf) {
		return ErrInsufficientStock.
			WithMessage("Batch "+b.BatchCode+" is no longer allocatable").
			WithDetail("batch_code", b.BatchCode).
			WithDetail("status", b.Status.String())
	}
	available := b.AvailableQuantity()
	if available.LessThan(quantity) {
		return ErrInsufficientStock.
			WithMessage("Batch "+b.BatchCode+" cannot cover the requested reservation").
			WithDetail("batch_code", b.BatchCode).
			WithDetail("requested", quantity.String()).
			WithDetail("available", available.String()).
			WithDetail("shortage", quantity.Sub(available).String())
	}
	b.ReservedQuantity = b.ReservedQuantity.Add(quantity)
	b.touch()
	return nil
}

// ReleaseReserved gives back reserved quantity
func (b *Batch) ReleaseReserved(quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return invalidRequest("Released quantity cannot be negative")
	}
	if quantity.GreaterThan(b.ReservedQuantity) {
		return ErrLedgerIntegrity.
			WithMessage("Release exceeds reserved quantity on batch "+b.BatchCode).
			WithDetail("batch_code", b.BatchCode).
			WithDetail("reserved", b.ReservedQuantity.String()).
			WithDetail("release", quantity.String())
	}
	b.ReservedQuantity = b.ReservedQuantity.Sub(quantity)
	b.touch()
	return nil
}

// Consume draws quantity down for production or sale. fromReservation is the
// part of quantity that was previously reserved for this consumption; it is
// released from reserved_quantity in the same step. The unreserved part must
// fit within the truly available quantity.
func (b *Batch) Consume(quantity, fromReservation decimal.Decimal, asOf time.Time) error {
	if !quantity.IsPositive() {
		return invalidRequest("Consumed quantity must be positive")
	}
	if fromReservation.IsNegative() || fromReservation.GreaterThan(quantity) {
		return invalidRequest("Reserved share must be between zero and the consumed quantity")
	}
	if !b.Status.IsAllocatable() || b.IsExpiredAt(asOf) {
		return ErrStaleAllocation.
			WithMessage("Batch "+b.BatchCode+" is no longer allocatable").
			WithDetail("batch_code", b.BatchCode).
			WithDetail("status", b.Status.String())
	}
	if fromReservation.GreaterThan(b.ReservedQuantity) {
		return ErrStaleAllocation.
			WithMessage("Reservation on batch "+b.BatchCode+" no longer holds the planned quantity").
			WithDetail("batch_code", b.BatchCode).
			WithDetail("reserved", b.ReservedQuantity.String())
	}
	unreserved := quantity.Sub(fromReservation)
	if unreserved.GreaterThan(b.AvailableQuantity()) {
		return ErrStaleAllocation.
			WithMessage("Batch "+b.BatchCode+" no longer holds the planned quantity").
			WithDetail("batch_code", b.BatchCode).
			WithDetail("planned", quantity.String()).
			WithDetail("available", b.AvailableQuantity().Add(fromReservation).String())
	}

	b.CurrentQuantity = b.CurrentQuantity.Sub(quantity)
	b.ReservedQuantity = b.ReservedQuantity.Sub(fromReservation)
	if b.CurrentQuantity.IsZero() {
		b.Status = BatchStatusConsumed
	}
	b.touch()
	return nil
}

// Expire moves a batch past its expiry date into EXPIRED. Reserved quantity
// is dropped and returned so the caller can release the reservation rows.
func (b *Batch) Expire(asOf time.Time) (releasedReserved decimal.Decimal, err error) {
	if !b.Status.IsAllocatable() {
		return decimal.Zero, b.transitionError(BatchStatusExpired)
	}
	if !b.IsPastExpiry(asOf) {
		return decimal.Zero, invalidRequest("Batch " + b.BatchCode + " has not reached its expiry date")
	}
	if !b.CurrentQuantity.IsPositive() {
		return decimal.Zero, b.transitionError(BatchStatusExpired)
	}
	releasedReserved = b.ReservedQuantity
	b.ReservedQuantity = decimal.Zero
	b.Status = BatchStatusExpired
	b.touch()
	b.AddDomainEvent(NewBatchExpiredEvent(b, releasedReserved))
	return releasedReserved, nil
}

// Spoil writes off part of the remaining quantity (a damaged sub-lot). The
// spoiled quantity must not eat into reserved stock. When nothing is left the
// batch becomes DISPOSED.
func (b *Batch) Spoil(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return invalidRequest("Spoiled quantity must be positive")
	}
	if !b.Status.IsAllocatable() && b.Status != BatchStatusExpired {
		return b.transitionError(BatchStatusDisposed)
	}
	available := b.AvailableQuantity()
	if quantity.GreaterThan(available) {
		return ErrInsufficientStock.
			WithMessage("Spoiled quantity exceeds the unreserved quantity of batch "+b.BatchCode).
			WithDetail("batch_code", b.BatchCode).
			WithDetail("requested", quantity.String()).
			WithDetail("available", available.String()).
			WithDetail("shortage", quantity.Sub(available).String())
	}
	b.CurrentQuantity = b.CurrentQuantity.Sub(quantity)
	if b.CurrentQuantity.IsZero() {
		b.Status = BatchStatusDisposed
	}
	b.touch()
	return nil
}

// Dispose writes off everything that is left. Returns the written-off quantity
// and the reserved quantity that was dropped with it.
func (b *Batch) Dispose() (disposed, releasedReserved decimal.Decimal, err error) {
	if !b.Status.IsAllocatable() && b.Status != BatchStatusExpired {
		return decimal.Zero, decimal.Zero, b.transitionError(BatchStatusDisposed)
	}
	disposed = b.CurrentQuantity
	releasedReserved = b.ReservedQuantity
	b.CurrentQuantity = decimal.Zero
	b.ReservedQuantity = decimal.Zero
	b.Status = BatchStatusDisposed
	b.touch()
	return disposed, releasedReserved, nil
}

func (b *Batch) touch() {
	b.IncrementVersion()
	b.Touch(time.Now())
}

func (b *Batch) transitionError(to BatchStatus) error {
	return ErrInvalidTransition.
		WithMessage("Batch "+b.BatchCode+" cannot move from "+b.Status.String()+" to "+to.String()).
		WithDetail("batch_code", b.BatchCode).
		WithDetail("from", b.Status.String()).
		WithDetail("to", to.String())
}
