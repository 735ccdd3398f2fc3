package inventory

import (
	"context"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TraceabilityService answers "where did this lot go" for audits and recalls
type TraceabilityService struct {
	ledgerCore
	batchRepo       inventory.BatchRepository
	reservationRepo inventory.ReservationRepository
	consumptionRepo inventory.ConsumptionRecordRepository
	spoilageRepo    inventory.SpoilageRecordRepository
}

// NewTraceabilityService creates a new TraceabilityService
func NewTraceabilityService(
	batchRepo inventory.BatchRepository,
	reservationRepo inventory.ReservationRepository,
	consumptionRepo inventory.ConsumptionRecordRepository,
	spoilageRepo inventory.SpoilageRecordRepository,
	logger *zap.Logger,
) *TraceabilityService {
	return &TraceabilityService{
		ledgerCore:      newLedgerCore(nil, logger),
		batchRepo:       batchRepo,
		reservationRepo: reservationRepo,
		consumptionRepo: consumptionRepo,
		spoilageRepo:    spoilageRepo,
	}
}

// GetTraceability returns the receipt, every consumption, reservation and
// spoilage record of a batch. Finished goods also list their ingredients;
// raw batches list the finished batches produced from them.
func (s *TraceabilityService) GetTraceability(ctx context.Context, batchCode string) (*TraceabilityReport, error) {
	code := inventory.NormalizeBatchCode(batchCode)
	if code == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Batch code cannot be empty")
	}

	batch, err := s.batchRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	consumptions, err := s.consumptionRepo.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.reservationRepo.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	spoilage, err := s.spoilageRepo.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	report := &TraceabilityReport{
		Batch:        ToBatchResponse(batch),
		Consumptions: make([]ConsumptionRecordResponse, 0, len(consumptions)),
		Reservations: ToReservationResponses(reservations),
		Spoilage:     ToSpoilageRecordResponses(spoilage),
		Summary: TraceabilitySummary{
			ConsumedProduction: decimal.Zero,
			ConsumedSale:       decimal.Zero,
			Spoiled:            decimal.Zero,
			Adjusted:           decimal.Zero,
			Reserved:           batch.ReservedQuantity,
			Remaining:          batch.CurrentQuantity,
		},
	}

	productionRefs := make([]string, 0)
	seenRefs := make(map[string]struct{})
	for i := range consumptions {
		r := &consumptions[i]
		report.Consumptions = append(report.Consumptions, ToConsumptionRecordResponse(r))
		switch r.Reason {
		case inventory.ConsumptionReasonProduction:
			report.Summary.ConsumedProduction = report.Summary.ConsumedProduction.Add(r.Quantity)
			if _, ok := seenRefs[r.ContextRef]; !ok {
				seenRefs[r.ContextRef] = struct{}{}
				productionRefs = append(productionRefs, r.ContextRef)
			}
		case inventory.ConsumptionReasonSale:
			report.Summary.ConsumedSale = report.Summary.ConsumedSale.Add(r.Quantity)
		case inventory.ConsumptionReasonSpoilage:
			report.Summary.Spoiled = report.Summary.Spoiled.Add(r.Quantity)
		case inventory.ConsumptionReasonAdjustment:
			report.Summary.Adjusted = report.Summary.Adjusted.Add(r.Quantity)
		}
	}

	accounted := report.Summary.ConsumedProduction.
		Add(report.Summary.ConsumedSale).
		Add(report.Summary.Spoiled).
		Add(report.Summary.Adjusted).
		Add(batch.CurrentQuantity)
	if !accounted.Equal(batch.QuantityReceived) {
		s.logger.Error("Consumption log does not account for batch quantity",
			zap.String("batch_id", batch.ID.String()),
			zap.String("batch_code", batch.BatchCode),
			zap.String("received", batch.QuantityReceived.String()),
			zap.String("accounted", accounted.String()),
		)
	}

	if batch.SourceType == inventory.BatchSourceProduction && batch.SourceRef != "" {
		ingredients, err := s.consumptionRepo.FindByContext(ctx, inventory.ConsumptionReasonProduction, batch.SourceRef)
		if err != nil {
			return nil, err
		}
		report.Ingredients = make([]ConsumptionRecordResponse, 0, len(ingredients))
		for i := range ingredients {
			report.Ingredients = append(report.Ingredients, ToConsumptionRecordResponse(&ingredients[i]))
		}
	}

	if len(productionRefs) > 0 {
		downstream, err := s.batchRepo.FindProducedBy(ctx, productionRefs)
		if err != nil {
			return nil, err
		}
		report.Downstream = ToBatchResponses(downstream)
	}

	return report, nil
}
