package inventory

import (
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpoilageReason classifies a write-off
type SpoilageReason string

const (
	SpoilageReasonExpired        SpoilageReason = "EXPIRED"
	SpoilageReasonDamaged        SpoilageReason = "DAMAGED"
	SpoilageReasonQualityFailure SpoilageReason = "QUALITY_FAILURE"
	SpoilageReasonContaminated   SpoilageReason = "CONTAMINATED"
	SpoilageReasonOther          SpoilageReason = "OTHER"
)

// IsValid checks if the reason is valid
func (r SpoilageReason) IsValid() bool {
	switch r {
	case SpoilageReasonExpired, SpoilageReasonDamaged, SpoilageReasonQualityFailure,
		SpoilageReasonContaminated, SpoilageReasonOther:
		return true
	}
	return false
}

// SpoilageStatus is the approval state of a write-off
type SpoilageStatus string

const (
	SpoilageStatusPending    SpoilageStatus = "PENDING"
	SpoilageStatusApproved   SpoilageStatus = "APPROVED"
	SpoilageStatusWrittenOff SpoilageStatus = "WRITTEN_OFF"
)

// SpoilageRecord is the formal loss recognition for expired or damaged stock
type SpoilageRecord struct {
	shared.BaseEntity
	BatchID         uuid.UUID
	BatchCode       string
	MaterialID      uuid.UUID
	QuantitySpoiled decimal.Decimal
	UnitCost        decimal.Decimal
	TotalLoss       decimal.Decimal
	Reason          SpoilageReason
	FifoBypassed    bool
	Status          SpoilageStatus
	DetectedAt      time.Time
	ApprovedAt      *time.Time
	WrittenOffAt    *time.Time
	Notes           string
}

// NewSpoilageRecord creates a pending spoilage record for quantity of batch
func NewSpoilageRecord(batch *Batch, quantity decimal.Decimal, reason SpoilageReason, fifoBypassed bool, notes string, at time.Time) (*SpoilageRecord, error) {
	if batch == nil {
		return nil, invalidRequest("Batch is required")
	}
	if !quantity.IsPositive() {
		return nil, invalidRequest("Spoiled quantity must be positive")
	}
	if !reason.IsValid() {
		return nil, invalidRequest("Invalid spoilage reason")
	}
	return &SpoilageRecord{
		BaseEntity:      shared.NewBaseEntity(),
		BatchID:         batch.ID,
		BatchCode:       batch.BatchCode,
		MaterialID:      batch.MaterialID,
		QuantitySpoiled: quantity,
		UnitCost:        batch.UnitCost,
		TotalLoss:       quantity.Mul(batch.UnitCost),
		Reason:          reason,
		FifoBypassed:    fifoBypassed,
		Status:          SpoilageStatusPending,
		DetectedAt:      at,
		Notes:           notes,
	}, nil
}

// IsExpiryRecord reports whether this record was produced by the expiry scan.
// At most one such record exists per batch.
func (s *SpoilageRecord) IsExpiryRecord() bool {
	return s.Reason == SpoilageReasonExpired
}

// Approve moves a pending record to APPROVED
func (s *SpoilageRecord) Approve(at time.Time) error {
	if s.Status != SpoilageStatusPending {
		return ErrInvalidTransition.
			WithMessage("Only pending spoilage records can be approved").
			WithDetail("spoilage_id", s.ID.String()).
			WithDetail("status", string(s.Status))
	}
	s.Status = SpoilageStatusApproved
	s.ApprovedAt = &at
	s.Touch(at)
	return nil
}

// WriteOff closes the record. Written-off records are final.
func (s *SpoilageRecord) WriteOff(at time.Time) error {
	if s.Status == SpoilageStatusWrittenOff {
		return ErrInvalidTransition.
			WithMessage("Spoilage record is already written off").
			WithDetail("spoilage_id", s.ID.String())
	}
	s.Status = SpoilageStatusWrittenOff
	s.WrittenOffAt = &at
	s.Touch(at)
	return nil
}

// ExpiryKey returns the uniqueness key for expiry records, nil for others
func (s *SpoilageRecord) ExpiryKey() *uuid.UUID {
	if !s.IsExpiryRecord() {
		return nil
	}
	id := s.BatchID
	return &id
}
