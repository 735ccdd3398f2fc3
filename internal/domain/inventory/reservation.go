package inventory

import (
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationStatus is the lifecycle state of a reservation
type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "ACTIVE"
	ReservationStatusReleased ReservationStatus = "RELEASED"
	ReservationStatusConsumed ReservationStatus = "CONSUMED"
	ReservationStatusExpired  ReservationStatus = "EXPIRED"
)

// IsValid checks if the status is valid
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusReleased, ReservationStatusConsumed, ReservationStatusExpired:
		return true
	}
	return false
}

// Reservation is a soft, time-limited hold on quantity of one batch for one
// order. It never carries quantity state of its own beyond what it promised;
// the batch's reserved_quantity is the authoritative sum.
type Reservation struct {
	shared.BaseEntity
	BatchID      uuid.UUID
	MaterialID   uuid.UUID
	OrderRef     string
	OrderLineRef string
	Quantity     decimal.Decimal
	Status       ReservationStatus
	ExpiresAt    time.Time
	ClosedAt     *time.Time
}

// NewReservation creates an active reservation
func NewReservation(batch *Batch, orderRef, orderLineRef string, quantity decimal.Decimal, expiresAt time.Time) (*Reservation, error) {
	if batch == nil {
		return nil, invalidRequest("Batch is required")
	}
	if orderRef == "" {
		return nil, invalidRequest("Order reference cannot be empty")
	}
	if !quantity.IsPositive() {
		return nil, invalidRequest("Reserved quantity must be positive")
	}
	return &Reservation{
		BaseEntity:   shared.NewBaseEntity(),
		BatchID:      batch.ID,
		MaterialID:   batch.MaterialID,
		OrderRef:     orderRef,
		OrderLineRef: orderLineRef,
		Quantity:     quantity,
		Status:       ReservationStatusActive,
		ExpiresAt:    expiresAt,
	}, nil
}

// IsActive returns true if the reservation still holds quantity
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsExpiredAt returns true if the reservation's TTL has passed
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Release marks the reservation as released (cancellation)
func (r *Reservation) Release(now time.Time) error {
	return r.close(ReservationStatusReleased, now)
}

// Expire marks the reservation as released by the TTL sweep
func (r *Reservation) Expire(now time.Time) error {
	return r.close(ReservationStatusExpired, now)
}

// Consume marks the reservation as converted into consumption
func (r *Reservation) Consume(now time.Time) error {
	return r.close(ReservationStatusConsumed, now)
}

func (r *Reservation) close(status ReservationStatus, now time.Time) error {
	if !r.IsActive() {
		return ErrInvalidTransition.
			WithMessage("Reservation is already "+string(r.Status)).
			WithDetail("reservation_id", r.ID.String())
	}
	r.Status = status
	r.ClosedAt = &now
	r.Touch(now)
	return nil
}
