package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScanMismatchReason explains why a scanned batch was refused
type ScanMismatchReason string

const (
	ScanMismatchNone          ScanMismatchReason = ""
	ScanMismatchNotOldest     ScanMismatchReason = "NOT_EXPECTED_BATCH"
	ScanMismatchWrongMaterial ScanMismatchReason = "WRONG_MATERIAL"
	ScanMismatchNotEligible   ScanMismatchReason = "NOT_ELIGIBLE"
	ScanMismatchUnknownCode   ScanMismatchReason = "UNKNOWN_CODE"
)

// ScanValidationResult tells the picker whether the lot in hand is the right one
type ScanValidationResult struct {
	Match                bool               `json:"match"`
	Reason               ScanMismatchReason `json:"reason,omitempty"`
	ScannedCode          string             `json:"scanned_code"`
	ScannedBatchID       *uuid.UUID         `json:"scanned_batch_id,omitempty"`
	ExpectedStep         int                `json:"expected_step"`
	ExpectedBatchID      uuid.UUID          `json:"expected_batch_id"`
	ExpectedCode         string             `json:"expected_code"`
	ExpectedReceivedDate time.Time          `json:"expected_received_date"`
	ExpectedExpiryDate   *time.Time         `json:"expected_expiry_date,omitempty"`
	ExpectedAvailable    decimal.Decimal    `json:"expected_available"`
}

// Err returns FifoViolation carrying what the operator needs to pick the
// right lot, or nil on a match
func (r *ScanValidationResult) Err() error {
	if r.Match {
		return nil
	}
	err := ErrFifoViolation.
		WithMessage("Scanned batch "+r.ScannedCode+" is not the expected batch "+r.ExpectedCode).
		WithDetail("scanned_code", r.ScannedCode).
		WithDetail("expected_code", r.ExpectedCode).
		WithDetail("expected_received_date", r.ExpectedReceivedDate.Format("2006-01-02")).
		WithDetail("reason", string(r.Reason))
	if r.ExpectedExpiryDate != nil {
		err = err.WithDetail("expected_expiry_date", r.ExpectedExpiryDate.Format("2006-01-02"))
	}
	return err
}

// ScanValidator enforces physical FIFO at the pick face
type ScanValidator struct {
	allocator *FIFOAllocator
}

// NewScanValidator creates a scan validator
func NewScanValidator(allocator *FIFOAllocator) *ScanValidator {
	if allocator == nil {
		allocator = NewFIFOAllocator()
	}
	return &ScanValidator{allocator: allocator}
}

// Validate compares scanned (nil when the code is unknown) against the batch at
// expectedStep of the FIFO pick list built from batches.
func (v *ScanValidator) Validate(materialID uuid.UUID, scannedCode string, scanned *Batch, expectedStep int, asOf time.Time, batches []Batch) (*ScanValidationResult, error) {
	if materialID == uuid.Nil {
		return nil, invalidRequest("Material ID cannot be empty")
	}
	if scannedCode == "" {
		return nil, invalidRequest("Scanned code cannot be empty")
	}
	if expectedStep < 0 {
		return nil, invalidRequest("Expected step cannot be negative")
	}

	pickList := v.allocator.EligibleBatches(materialID, asOf, batches)
	if len(pickList) == 0 {
		return nil, ErrInsufficientStock.
			WithMessage("No eligible batch left to pick").
			WithDetail("material_id", materialID.String())
	}
	if expectedStep >= len(pickList) {
		return nil, invalidRequest("Expected step is beyond the pick list").
			WithDetail("expected_step", expectedStep).
			WithDetail("pick_list_length", len(pickList))
	}

	expected := pickList[expectedStep]
	result := &ScanValidationResult{
		ScannedCode:          scannedCode,
		ExpectedStep:         expectedStep,
		ExpectedBatchID:      expected.ID,
		ExpectedCode:         expected.BatchCode,
		ExpectedReceivedDate: expected.ReceivedDate,
		ExpectedExpiryDate:   expected.ExpiryDate,
		ExpectedAvailable:    expected.AvailableQuantity(),
	}

	switch {
	case scanned == nil:
		result.Reason = ScanMismatchUnknownCode
	case scanned.MaterialID != materialID:
		result.ScannedBatchID = &scanned.ID
		result.Reason = ScanMismatchWrongMaterial
	case scanned.ID == expected.ID:
		result.ScannedBatchID = &scanned.ID
		result.Match = true
	case !scanned.IsEligibleAt(asOf):
		result.ScannedBatchID = &scanned.ID
		result.Reason = ScanMismatchNotEligible
	default:
		result.ScannedBatchID = &scanned.ID
		result.Reason = ScanMismatchNotOldest
	}
	return result, nil
}
