package inventory

import (
	"context"
	"errors"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"go.uber.org/zap"
)

// AllocationService answers FIFO questions without mutating the ledger
type AllocationService struct {
	ledgerCore
	materialRepo inventory.MaterialRepository
	batchRepo    inventory.BatchRepository
	allocator    *inventory.FIFOAllocator
	validator    *inventory.ScanValidator
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(
	materialRepo inventory.MaterialRepository,
	batchRepo inventory.BatchRepository,
	logger *zap.Logger,
) *AllocationService {
	allocator := inventory.NewFIFOAllocator()
	return &AllocationService{
		ledgerCore:   newLedgerCore(nil, logger),
		materialRepo: materialRepo,
		batchRepo:    batchRepo,
		allocator:    allocator,
		validator:    inventory.NewScanValidator(allocator),
	}
}

// PreviewAllocation computes the FIFO plan for a quantity of a material.
// A shortage is reported in the plan, not as an error.
func (s *AllocationService) PreviewAllocation(ctx context.Context, req PreviewAllocationRequest) (*inventory.AllocationPlan, error) {
	if !req.Quantity.IsPositive() {
		return nil, inventory.ErrInvalidRequest.
			WithMessage("Requested quantity must be positive").
			WithDetail("requested", req.Quantity.String())
	}
	if _, err := s.materialRepo.FindByID(ctx, req.MaterialID); err != nil {
		return nil, err
	}

	asOf := s.asOfDate(req.AsOf)
	batches, err := s.batchRepo.FindEligible(ctx, req.MaterialID, asOf)
	if err != nil {
		return nil, err
	}
	plan, err := s.allocator.Allocate(req.MaterialID, req.Quantity, asOf, batches)
	if err != nil {
		return nil, err
	}

	if !plan.FullySatisfied {
		s.logger.Debug("Allocation preview short",
			zap.String("material_id", req.MaterialID.String()),
			zap.String("requested", req.Quantity.String()),
			zap.String("shortage", plan.Shortage.String()),
		)
	}
	return plan, nil
}

// ValidateScannedBatch checks the lot in the picker's hand against the batch
// at expectedStep of the current pick list. A mismatch is returned as a
// result with Match=false and also announced as a FifoViolationDetected event.
func (s *AllocationService) ValidateScannedBatch(ctx context.Context, req ValidateScanRequest) (*inventory.ScanValidationResult, error) {
	code := inventory.NormalizeBatchCode(req.ScannedCode)
	if code == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Scanned code cannot be empty")
	}
	if _, err := s.materialRepo.FindByID(ctx, req.MaterialID); err != nil {
		return nil, err
	}

	scanned, err := s.batchRepo.FindByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, inventory.ErrBatchNotFound) {
			return nil, err
		}
		scanned = nil
	}

	asOf := s.asOfDate(req.AsOf)
	batches, err := s.batchRepo.FindEligible(ctx, req.MaterialID, asOf)
	if err != nil {
		return nil, err
	}

	result, err := s.validator.Validate(req.MaterialID, code, scanned, req.ExpectedStep, asOf, batches)
	if err != nil {
		return nil, err
	}

	if !result.Match {
		s.logger.Warn("FIFO violation at pick face",
			zap.String("material_id", req.MaterialID.String()),
			zap.String("scanned_code", code),
			zap.String("expected_code", result.ExpectedCode),
			zap.String("reason", string(result.Reason)),
			zap.String("actor_ref", req.ActorRef),
		)
		s.publish(ctx, inventory.NewFifoViolationDetectedEvent(req.MaterialID, result))
	}
	return result, nil
}
