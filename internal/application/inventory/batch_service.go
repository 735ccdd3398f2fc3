package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BatchService handles the material register, batch receipt and the quality gate
type BatchService struct {
	ledgerCore
	materialRepo inventory.MaterialRepository
	batchRepo    inventory.BatchRepository
	codePrefixes map[inventory.BatchSourceType]string
}

// NewBatchService creates a new BatchService
func NewBatchService(
	materialRepo inventory.MaterialRepository,
	batchRepo inventory.BatchRepository,
	txScope TransactionScope,
	logger *zap.Logger,
) *BatchService {
	return &BatchService{
		ledgerCore:   newLedgerCore(txScope, logger),
		materialRepo: materialRepo,
		batchRepo:    batchRepo,
	}
}

// SetBatchCodePrefixes overrides the batch code prefix per source type
func (s *BatchService) SetBatchCodePrefixes(prefixes map[inventory.BatchSourceType]string) {
	s.codePrefixes = prefixes
}

// RegisterMaterial adds a material to the register
func (s *BatchService) RegisterMaterial(ctx context.Context, req RegisterMaterialRequest) (*MaterialResponse, error) {
	material, err := inventory.NewMaterial(req.Code, req.Name, req.Kind, req.Unit, req.ShelfLifeDays)
	if err != nil {
		return nil, err
	}

	existing, err := s.materialRepo.FindByCode(ctx, material.Code)
	if err == nil && existing != nil {
		return nil, shared.ErrAlreadyExists.
			WithMessage("Material code " + material.Code + " already exists").
			WithDetail("material_code", material.Code)
	}
	if err != nil && !errors.Is(err, inventory.ErrMaterialNotFound) {
		return nil, err
	}

	if err := s.materialRepo.Create(ctx, material); err != nil {
		return nil, err
	}

	s.logger.Info("Material registered",
		zap.String("material_id", material.ID.String()),
		zap.String("material_code", material.Code),
		zap.String("kind", material.Kind.String()),
	)
	response := ToMaterialResponse(material)
	return &response, nil
}

// GetMaterial retrieves a material with its on-hand aggregate
func (s *BatchService) GetMaterial(ctx context.Context, id uuid.UUID) (*MaterialResponse, error) {
	material, err := s.materialRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToMaterialResponse(material)
	return &response, nil
}

// ReceiveBatch brings a raw-material or purchased batch into the ledger
func (s *BatchService) ReceiveBatch(ctx context.Context, req ReceiveBatchRequest) (*BatchResponse, error) {
	if req.SourceType == "" {
		req.SourceType = inventory.BatchSourceRawReceipt
	}
	if req.SourceType == inventory.BatchSourceProduction {
		return nil, inventory.ErrInvalidRequest.
			WithMessage("Finished-goods batches are created by recording production output")
	}
	if !req.Quantity.IsPositive() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Received quantity must be positive")
	}

	material, err := s.materialRepo.FindByID(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}

	receivedDate := s.asOf(req.ReceivedDate)
	expiry := req.ExpiryDate
	if expiry == nil {
		from := receivedDate
		if req.ProductionDate != nil {
			from = *req.ProductionDate
		}
		expiry = material.DefaultExpiry(from)
	}

	var batch *inventory.Batch
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		code, err := s.resolveBatchCode(ctx, repos, req.BatchCode, req.SourceType, req.SourceRef, receivedDate)
		if err != nil {
			return err
		}
		batch, err = inventory.NewBatch(inventory.NewBatchParams{
			MaterialID:      material.ID,
			MaterialKind:    material.Kind,
			BatchCode:       code,
			SourceType:      req.SourceType,
			SourceRef:       req.SourceRef,
			Quantity:        req.Quantity,
			UnitCost:        req.UnitCost,
			ReceivedDate:    receivedDate,
			ProductionDate:  req.ProductionDate,
			ExpiryDate:      expiry,
			StorageLocation: req.StorageLocation,
		})
		if err != nil {
			return err
		}
		if err := repos.Batches().Create(ctx, batch); err != nil {
			return err
		}
		return repos.Materials().AdjustOnHand(ctx, material.ID, batch.QuantityReceived)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Batch received",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("material_id", material.ID.String()),
		zap.String("quantity", batch.QuantityReceived.String()),
	)
	events := &eventCollector{}
	events.drain(batch)
	s.publish(ctx, events.events...)

	response := ToBatchResponse(batch)
	return &response, nil
}

// RecordProductionOutput creates the finished-goods batch of a production run.
// Its unit cost is the cost of everything issued to the run divided by the
// output quantity.
func (s *BatchService) RecordProductionOutput(ctx context.Context, req RecordProductionOutputRequest) (*BatchResponse, error) {
	if strings.TrimSpace(req.ProductionRef) == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Production reference cannot be empty")
	}
	if !req.Quantity.IsPositive() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Output quantity must be positive")
	}

	material, err := s.materialRepo.FindByID(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}
	if material.Kind != inventory.MaterialKindFinished {
		return nil, inventory.ErrInvalidRequest.
			WithMessage("Production output must be a finished-goods material").
			WithDetail("material_code", material.Code)
	}

	now := s.now()
	productionDate := now
	if req.ProductionDate != nil {
		productionDate = req.ProductionDate.UTC()
	}
	expiry := req.ExpiryDate
	if expiry == nil {
		expiry = material.DefaultExpiry(productionDate)
	}

	var (
		batch           *inventory.Batch
		unitCost        decimal.Decimal
		ingredientLines int
	)
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		unitCost, ingredientLines, err = s.productionUnitCost(ctx, repos, req.ProductionRef, req.Quantity)
		if err != nil {
			return err
		}
		code, err := s.resolveBatchCode(ctx, repos, "", inventory.BatchSourceProduction, req.ProductionRef, productionDate)
		if err != nil {
			return err
		}
		batch, err = inventory.NewBatch(inventory.NewBatchParams{
			MaterialID:      material.ID,
			MaterialKind:    inventory.MaterialKindFinished,
			BatchCode:       code,
			SourceType:      inventory.BatchSourceProduction,
			SourceRef:       req.ProductionRef,
			Quantity:        req.Quantity,
			UnitCost:        unitCost,
			ReceivedDate:    productionDate,
			ProductionDate:  &productionDate,
			ExpiryDate:      expiry,
			StorageLocation: req.StorageLocation,
		})
		if err != nil {
			return err
		}
		if err := repos.Batches().Create(ctx, batch); err != nil {
			return err
		}
		return repos.Materials().AdjustOnHand(ctx, material.ID, batch.QuantityReceived)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Production output recorded",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("production_ref", req.ProductionRef),
		zap.Int("ingredient_lines", ingredientLines),
		zap.String("unit_cost", unitCost.String()),
	)
	events := &eventCollector{}
	events.drain(batch)
	s.publish(ctx, events.events...)

	response := ToBatchResponse(batch)
	return &response, nil
}

// productionUnitCost spreads the part of a run's input cost not yet carried by
// earlier outputs of the same run over quantity. Earlier outputs count at
// quantity times their rounded unit cost; a remainder within that rounding
// error means the run is fully costed.
func (s *BatchService) productionUnitCost(ctx context.Context, repos TransactionalRepositories, productionRef string, quantity decimal.Decimal) (decimal.Decimal, int, error) {
	ingredients, err := repos.Consumptions().FindByContext(ctx, inventory.ConsumptionReasonProduction, productionRef)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if len(ingredients) == 0 {
		return decimal.Zero, 0, inventory.ErrInvalidRequest.
			WithMessage("Nothing was issued to production run " + productionRef).
			WithDetail("production_ref", productionRef)
	}

	// Outputs of one run serialize on the row locks of its ingredient batches
	ids := make([]uuid.UUID, 0, len(ingredients))
	for _, r := range ingredients {
		ids = append(ids, r.BatchID)
	}
	if _, err := lockBatches(ctx, repos, ids); err != nil {
		return decimal.Zero, 0, err
	}

	earlier, err := repos.Batches().FindProducedBy(ctx, []string{productionRef})
	if err != nil {
		return decimal.Zero, 0, err
	}
	_, inputCost := inventory.SumConsumed(ingredients)
	assigned, slack := decimal.Zero, decimal.Zero
	for _, b := range earlier {
		assigned = assigned.Add(b.QuantityReceived.Mul(b.UnitCost))
		slack = slack.Add(b.QuantityReceived.Mul(unitCostRounding))
	}
	remaining := inputCost.Sub(assigned)
	if !remaining.GreaterThan(slack) {
		return decimal.Zero, 0, inventory.ErrInvalidRequest.
			WithMessage("Input cost of production run " + productionRef + " is already carried by earlier output").
			WithDetail("production_ref", productionRef).
			WithDetail("input_cost", inputCost.String()).
			WithDetail("assigned_cost", assigned.String())
	}
	return remaining.DivRound(quantity, 4), len(ingredients), nil
}

// unitCostRounding is the largest error DivRound(_, 4) leaves in a unit cost
var unitCostRounding = decimal.New(5, -5)

// resolveBatchCode normalizes a caller-supplied code or generates the next one
func (s *BatchService) resolveBatchCode(ctx context.Context, repos TransactionalRepositories, supplied string, sourceType inventory.BatchSourceType, sourceRef string, date time.Time) (string, error) {
	if supplied == "" {
		generator := inventory.NewBatchCodeGenerator(repos.Sequence(), s.codePrefixes)
		return generator.Generate(ctx, sourceType, sourceRef, date)
	}

	code := inventory.NormalizeBatchCode(supplied)
	if code == "" {
		return "", inventory.ErrInvalidRequest.WithMessage("Batch code cannot be empty")
	}
	_, err := repos.Batches().FindByCode(ctx, code)
	if err == nil {
		return "", shared.ErrAlreadyExists.
			WithMessage("Batch code " + code + " already exists").
			WithDetail("batch_code", code)
	}
	if !errors.Is(err, inventory.ErrBatchNotFound) {
		return "", err
	}
	return code, nil
}

// ApproveBatch passes a batch through the quality gate
func (s *BatchService) ApproveBatch(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	var batch *inventory.Batch
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.Batches().FindByIDForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if err := batch.Approve(); err != nil {
			return err
		}
		return repos.Batches().Update(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Batch approved",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
	)
	response := ToBatchResponse(batch)
	return &response, nil
}

// RejectBatch fails a batch at the quality gate. Its remaining quantity leaves
// the ledger through an ADJUSTMENT record and its reservations are released.
func (s *BatchService) RejectBatch(ctx context.Context, req RejectBatchRequest) (*BatchResponse, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Rejection reason cannot be empty")
	}

	events := &eventCollector{}
	var batch *inventory.Batch
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.Batches().FindByIDForUpdate(ctx, req.BatchID)
		if err != nil {
			return err
		}
		reserved := batch.ReservedQuantity
		removed, err := batch.Reject()
		if err != nil {
			return err
		}
		if err := repos.Batches().Update(ctx, batch); err != nil {
			return err
		}

		now := s.now()
		released, err := closeBatchReservations(ctx, repos, batch.ID, now, false)
		if err != nil {
			return err
		}
		if !sumReservations(released).Equal(reserved) {
			s.logger.Error("Reserved quantity does not match active reservations",
				zap.String("batch_id", batch.ID.String()),
				zap.String("reserved", reserved.String()),
				zap.String("reservations", sumReservations(released).String()),
			)
		}
		for i := range released {
			events.add(inventory.NewReservationReleasedEvent(&released[i]))
		}

		if removed.IsPositive() {
			record := inventory.NewConsumptionRecord(batch, removed, inventory.ConsumptionContext{
				Reason:     inventory.ConsumptionReasonAdjustment,
				ContextRef: "QC-REJECT-" + batch.BatchCode,
				ActorRef:   req.ActorRef,
				Metadata:   map[string]string{"reason": req.Reason},
			}, nil, now)
			if err := repos.Consumptions().Append(ctx, record); err != nil {
				return err
			}
			if err := repos.Materials().AdjustOnHand(ctx, batch.MaterialID, removed.Neg()); err != nil {
				return err
			}
		}
		events.add(inventory.NewBatchRejectedEvent(batch, removed, req.Reason))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Batch rejected",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("reason", req.Reason),
	)
	s.publish(ctx, events.events...)

	response := ToBatchResponse(batch)
	return &response, nil
}

// GetBatch retrieves a batch by ID
func (s *BatchService) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	response := ToBatchResponse(batch)
	return &response, nil
}

// ListBatches returns a page of batches
func (s *BatchService) ListBatches(ctx context.Context, filter BatchListFilter) (shared.Paginated[BatchResponse], error) {
	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Search:   filter.Search,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Filters:  make(map[string]any),
	}
	if domainFilter.Page <= 0 {
		domainFilter.Page = 1
	}
	if domainFilter.PageSize <= 0 {
		domainFilter.PageSize = 20
	}
	if filter.MaterialID != nil {
		domainFilter.Filters["material_id"] = *filter.MaterialID
	}
	if filter.Status != "" {
		domainFilter.Filters["status"] = strings.ToUpper(filter.Status)
	}
	if filter.MaterialKind != "" {
		domainFilter.Filters["material_kind"] = strings.ToUpper(filter.MaterialKind)
	}
	if filter.SourceType != "" {
		domainFilter.Filters["source_type"] = strings.ToUpper(filter.SourceType)
	}
	if filter.SourceRef != "" {
		domainFilter.Filters["source_ref"] = filter.SourceRef
	}
	if filter.ExpiringBefore != nil {
		domainFilter.Filters["expiring_before"] = *filter.ExpiringBefore
	}
	if filter.HasStock != nil {
		domainFilter.Filters["has_stock"] = *filter.HasStock
	}

	batches, total, err := s.batchRepo.List(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[BatchResponse]{}, err
	}
	return shared.NewPaginated(ToBatchResponses(batches), total, domainFilter.Page, domainFilter.PageSize), nil
}

// closeBatchReservations closes every active reservation on a batch whose
// reserved quantity was already dropped by the batch transition. expired
// selects the EXPIRED flavour used by the expiry scan.
func closeBatchReservations(ctx context.Context, repos TransactionalRepositories, batchID uuid.UUID, now time.Time, expired bool) ([]inventory.Reservation, error) {
	active, err := repos.Reservations().FindActiveByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for i := range active {
		r := &active[i]
		if expired {
			err = r.Expire(now)
		} else {
			err = r.Release(now)
		}
		if err != nil {
			return nil, err
		}
		if err := repos.Reservations().Update(ctx, r); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func sumReservations(reservations []inventory.Reservation) decimal.Decimal {
	total := decimal.Zero
	for _, r := range reservations {
		total = total.Add(r.Quantity)
	}
	return total
}
