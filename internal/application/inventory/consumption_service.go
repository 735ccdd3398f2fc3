package inventory

import (
	"context"
	"strings"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConsumptionService commits FIFO picks for production issuance and sales dispatch
type ConsumptionService struct {
	ledgerCore
	materialRepo inventory.MaterialRepository
	allocator    *inventory.FIFOAllocator
}

// NewConsumptionService creates a new ConsumptionService
func NewConsumptionService(
	materialRepo inventory.MaterialRepository,
	txScope TransactionScope,
	logger *zap.Logger,
) *ConsumptionService {
	return &ConsumptionService{
		ledgerCore:   newLedgerCore(txScope, logger),
		materialRepo: materialRepo,
		allocator:    inventory.NewFIFOAllocator(),
	}
}

// commitRequest is what IssueForProduction and DispatchForSale share
type commitRequest struct {
	materialID uuid.UUID
	quantity   decimal.Decimal
	plan       []PlanLineInput
	context    inventory.ConsumptionContext
}

// IssueForProduction draws raw material for a production run, oldest batch first
func (s *ConsumptionService) IssueForProduction(ctx context.Context, req IssueForProductionRequest) (*ConsumptionResult, error) {
	return s.commit(ctx, commitRequest{
		materialID: req.MaterialID,
		quantity:   req.Quantity,
		plan:       req.Plan,
		context: inventory.ConsumptionContext{
			Reason:     inventory.ConsumptionReasonProduction,
			ContextRef: strings.TrimSpace(req.ProductionRef),
			ActorRef:   req.ActorRef,
			Metadata:   req.Metadata,
		},
	})
}

// DispatchForSale draws finished goods for a sale. The result carries the
// batch codes to print on the dispatch document.
func (s *ConsumptionService) DispatchForSale(ctx context.Context, req DispatchForSaleRequest) (*ConsumptionResult, error) {
	return s.commit(ctx, commitRequest{
		materialID: req.ProductID,
		quantity:   req.Quantity,
		plan:       req.Plan,
		context: inventory.ConsumptionContext{
			Reason:     inventory.ConsumptionReasonSale,
			ContextRef: strings.TrimSpace(req.SaleRef),
			ActorRef:   req.ActorRef,
			Metadata:   req.Metadata,
		},
	})
}

// commit re-validates every line under row lock and applies the whole plan or
// nothing. Without a plan one is computed from the locked batches.
func (s *ConsumptionService) commit(ctx context.Context, req commitRequest) (_ *ConsumptionResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "consumption", "commit",
		telemetry.AttrMaterialID.String(req.materialID.String()),
		telemetry.AttrReason.String(string(req.context.Reason)),
		telemetry.AttrContextRef.String(req.context.ContextRef),
		telemetry.AttrQuantity.String(req.quantity.String()),
		telemetry.AttrLineCount.Int(len(req.plan)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := req.context.Validate(); err != nil {
		return nil, err
	}
	if err := validatePlanInput(req.plan, req.quantity); err != nil {
		return nil, err
	}
	if len(req.plan) > 0 && req.quantity.IsZero() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Requested quantity must be positive")
	}
	if _, err := s.materialRepo.FindByID(ctx, req.materialID); err != nil {
		return nil, err
	}

	var records []*inventory.ConsumptionRecord
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records = nil
		now := s.now()

		var (
			plan *inventory.AllocationPlan
			byID map[uuid.UUID]*inventory.Batch
			err  error
		)
		if len(req.plan) > 0 {
			byID, err = lockBatches(ctx, repos, planBatchIDs(req.plan))
			if err != nil {
				return err
			}
			plan, err = s.planFromInput(req.materialID, req.plan, byID, now, "commit")
			if err != nil {
				return err
			}
		} else {
			batches, err := repos.Batches().FindEligibleForUpdate(ctx, req.materialID, now)
			if err != nil {
				return err
			}
			plan, err = s.allocator.Allocate(req.materialID, req.quantity, now, batches)
			if err != nil {
				return err
			}
			if err := plan.ShortageError(); err != nil {
				return err
			}
			byID = make(map[uuid.UUID]*inventory.Batch, len(batches))
			for i := range batches {
				byID[batches[i].ID] = &batches[i]
			}
		}
		if len(plan.Lines) == 0 {
			return inventory.ErrInsufficientStock.
				WithDetail("material_id", req.materialID.String()).
				WithDetail("requested", req.quantity.String())
		}

		total := decimal.Zero
		for _, line := range plan.Lines {
			batch := byID[line.BatchID]
			if err := batch.Consume(line.Quantity, decimal.Zero, now); err != nil {
				return err
			}
			if err := repos.Batches().Update(ctx, batch); err != nil {
				return err
			}
			records = append(records, inventory.NewConsumptionRecord(batch, line.Quantity, req.context, nil, now))
			total = total.Add(line.Quantity)
		}

		if err := repos.Consumptions().Append(ctx, records...); err != nil {
			return err
		}
		return repos.Materials().AdjustOnHand(ctx, req.materialID, total.Neg())
	})
	if err != nil {
		s.logger.Info("Consumption rejected",
			zap.String("material_id", req.materialID.String()),
			zap.String("reason", string(req.context.Reason)),
			zap.String("context_ref", req.context.ContextRef),
			zap.Error(err),
		)
		return nil, err
	}

	result := newConsumptionResult(req.materialID, req.context.ContextRef, records)
	s.logger.Info("Stock consumed",
		zap.String("material_id", req.materialID.String()),
		zap.String("reason", string(req.context.Reason)),
		zap.String("context_ref", req.context.ContextRef),
		zap.String("quantity", result.Quantity.String()),
		zap.Strings("batch_codes", result.BatchCodes),
	)
	s.publish(ctx, inventory.NewStockConsumedEvent(req.materialID, req.context, records))
	return result, nil
}
