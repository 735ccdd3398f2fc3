package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReservationService places, releases and converts soft holds on batch stock
type ReservationService struct {
	ledgerCore
	materialRepo    inventory.MaterialRepository
	reservationRepo inventory.ReservationRepository
	allocator       *inventory.FIFOAllocator
	defaultTTL      time.Duration
	sweepLimit      int
}

// NewReservationService creates a new ReservationService
func NewReservationService(
	materialRepo inventory.MaterialRepository,
	reservationRepo inventory.ReservationRepository,
	txScope TransactionScope,
	logger *zap.Logger,
) *ReservationService {
	return &ReservationService{
		ledgerCore:      newLedgerCore(txScope, logger),
		materialRepo:    materialRepo,
		reservationRepo: reservationRepo,
		allocator:       inventory.NewFIFOAllocator(),
		defaultTTL:      DefaultReservationTTL,
		sweepLimit:      DefaultScanBatchLimit,
	}
}

// SetDefaultReservationTTL sets the TTL used when a request carries none
func (s *ReservationService) SetDefaultReservationTTL(ttl time.Duration) {
	if ttl > 0 {
		s.defaultTTL = ttl
	}
}

// SetSweepLimit bounds how many reservations one sweep call releases
func (s *ReservationService) SetSweepLimit(limit int) {
	if limit > 0 {
		s.sweepLimit = limit
	}
}

// ReserveForOrder holds stock for an order. With an explicit plan every line
// is reserved as given; without one a FIFO plan is computed under row locks.
// Either the whole plan is reserved or nothing is.
func (s *ReservationService) ReserveForOrder(ctx context.Context, req ReserveForOrderRequest) (_ *ReservationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "reserve_for_order",
		telemetry.AttrOrderRef.String(req.OrderRef),
		telemetry.AttrMaterialID.String(req.MaterialID.String()),
		telemetry.AttrQuantity.String(req.Quantity.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()
	return s.reserveForOrder(ctx, req)
}

func (s *ReservationService) reserveForOrder(ctx context.Context, req ReserveForOrderRequest) (*ReservationResult, error) {
	req.OrderRef = strings.TrimSpace(req.OrderRef)
	if req.OrderRef == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Order reference cannot be empty")
	}
	if req.TTL < 0 {
		return nil, inventory.ErrInvalidRequest.WithMessage("Reservation TTL cannot be negative")
	}
	if err := validatePlanInput(req.Plan, req.Quantity); err != nil {
		return nil, err
	}
	if _, err := s.materialRepo.FindByID(ctx, req.MaterialID); err != nil {
		return nil, err
	}

	// Expired holds must not block this attempt
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("Opportunistic reservation sweep failed", zap.Error(err))
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	var (
		plan         *inventory.AllocationPlan
		reservations []*inventory.Reservation
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		reservations = reservations[:0]

		var byID map[uuid.UUID]*inventory.Batch
		if len(req.Plan) > 0 {
			byID, err = lockBatches(ctx, repos, planBatchIDs(req.Plan))
			if err != nil {
				return err
			}
			plan, err = s.planFromInput(req.MaterialID, req.Plan, byID, now, "reserve")
			if err != nil {
				return err
			}
		} else {
			batches, err := repos.Batches().FindEligibleForUpdate(ctx, req.MaterialID, now)
			if err != nil {
				return err
			}
			plan, err = s.allocator.Allocate(req.MaterialID, req.Quantity, now, batches)
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

		for _, line := range plan.Lines {
			batch := byID[line.BatchID]
			if err := batch.Reserve(line.Quantity, now); err != nil {
				return err
			}
			if err := repos.Batches().Update(ctx, batch); err != nil {
				return err
			}
			reservation, err := inventory.NewReservation(batch, req.OrderRef, req.OrderLineRef, line.Quantity, expiresAt)
			if err != nil {
				return err
			}
			if err := repos.Reservations().Create(ctx, reservation); err != nil {
				return err
			}
			reservations = append(reservations, reservation)
		}
		return nil
	})
	if err != nil {
		s.logger.Info("Reservation rejected",
			zap.String("order_ref", req.OrderRef),
			zap.String("material_id", req.MaterialID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	result := &ReservationResult{
		OrderRef:       req.OrderRef,
		MaterialID:     req.MaterialID,
		Quantity:       plan.AllocatedQuantity,
		ReservationIDs: make([]uuid.UUID, 0, len(reservations)),
		Reservations:   make([]ReservationResponse, 0, len(reservations)),
		Plan:           plan,
		ExpiresAt:      expiresAt,
	}
	for _, r := range reservations {
		result.ReservationIDs = append(result.ReservationIDs, r.ID)
		result.Reservations = append(result.Reservations, ToReservationResponse(r))
	}

	s.logger.Info("Stock reserved",
		zap.String("order_ref", req.OrderRef),
		zap.String("material_id", req.MaterialID.String()),
		zap.String("quantity", plan.AllocatedQuantity.String()),
		zap.Int("batches", len(plan.Lines)),
	)
	s.publish(ctx, inventory.NewStockReservedEvent(req.MaterialID, req.OrderRef, plan.AllocatedQuantity, result.ReservationIDs))
	return result, nil
}

// ReleaseReservations cancels every active reservation of an order
func (s *ReservationService) ReleaseReservations(ctx context.Context, orderRef string) (*ReleaseResult, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Order reference cannot be empty")
	}

	events := &eventCollector{}
	released := 0
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		events.events = nil
		released = 0

		active, err := repos.Reservations().FindActiveByOrder(ctx, orderRef)
		if err != nil || len(active) == 0 {
			return err
		}
		byID, err := lockBatches(ctx, repos, reservationBatchIDs(active))
		if err != nil {
			return err
		}

		now := s.now()
		for i := range active {
			r := &active[i]
			batch, ok := byID[r.BatchID]
			if !ok {
				return s.missingBatchError(r.BatchID, "release")
			}
			if err := batch.ReleaseReserved(r.Quantity); err != nil {
				return err
			}
			if err := repos.Batches().Update(ctx, batch); err != nil {
				return err
			}
			if err := r.Release(now); err != nil {
				return err
			}
			if err := repos.Reservations().Update(ctx, r); err != nil {
				return err
			}
			events.add(inventory.NewReservationReleasedEvent(r))
			released++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if released > 0 {
		s.logger.Info("Reservations released",
			zap.String("order_ref", orderRef),
			zap.Int("count", released),
		)
	}
	s.publish(ctx, events.events...)
	return &ReleaseResult{Released: released}, nil
}

// FulfillOrder turns the active reservations of an order into consumption.
// A reservation whose TTL already passed fails the whole call with
// ReservationExpired; the caller re-reserves.
func (s *ReservationService) FulfillOrder(ctx context.Context, req FulfillOrderRequest) (_ *ConsumptionResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "fulfill_order", telemetry.AttrOrderRef.String(req.OrderRef))
	defer func() { telemetry.EndSpan(span, err) }()
	return s.fulfillOrder(ctx, req)
}

func (s *ReservationService) fulfillOrder(ctx context.Context, req FulfillOrderRequest) (*ConsumptionResult, error) {
	req.OrderRef = strings.TrimSpace(req.OrderRef)
	if req.OrderRef == "" {
		return nil, inventory.ErrInvalidRequest.WithMessage("Order reference cannot be empty")
	}
	if req.Reason == "" {
		req.Reason = inventory.ConsumptionReasonSale
	}
	if !req.Reason.IsPick() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Fulfillment reason must be SALE or PRODUCTION")
	}
	if req.ContextRef == "" {
		req.ContextRef = req.OrderRef
	}
	cctx := inventory.ConsumptionContext{
		Reason:     req.Reason,
		ContextRef: req.ContextRef,
		ActorRef:   req.ActorRef,
		Metadata:   map[string]string{"order_ref": req.OrderRef},
	}

	var records []*inventory.ConsumptionRecord
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records = nil
		now := s.now()

		active, err := repos.Reservations().FindActiveByOrder(ctx, req.OrderRef)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return s.noActiveReservationsError(ctx, repos, req.OrderRef)
		}
		for i := range active {
			if active[i].IsExpiredAt(now) {
				return inventory.ErrReservationExpired.
					WithDetail("order_ref", req.OrderRef).
					WithDetail("reservation_id", active[i].ID.String()).
					WithDetail("expires_at", active[i].ExpiresAt.Format(time.RFC3339))
			}
		}

		byID, err := lockBatches(ctx, repos, reservationBatchIDs(active))
		if err != nil {
			return err
		}

		deltas := make(map[uuid.UUID]decimal.Decimal)
		for i := range active {
			r := &active[i]
			batch, ok := byID[r.BatchID]
			if !ok {
				return s.missingBatchError(r.BatchID, "fulfill")
			}
			if err := batch.Consume(r.Quantity, r.Quantity, now); err != nil {
				return err
			}
			if err := repos.Batches().Update(ctx, batch); err != nil {
				return err
			}
			if err := r.Consume(now); err != nil {
				return err
			}
			if err := repos.Reservations().Update(ctx, r); err != nil {
				return err
			}
			reservationID := r.ID
			records = append(records, inventory.NewConsumptionRecord(batch, r.Quantity, cctx, &reservationID, now))
			deltas[batch.MaterialID] = deltas[batch.MaterialID].Sub(r.Quantity)
		}

		if err := repos.Consumptions().Append(ctx, records...); err != nil {
			return err
		}
		return adjustOnHand(ctx, repos, deltas)
	})
	if err != nil {
		return nil, err
	}

	byMaterial := make(map[uuid.UUID][]*inventory.ConsumptionRecord)
	order := make([]uuid.UUID, 0, 1)
	for _, r := range records {
		if _, ok := byMaterial[r.MaterialID]; !ok {
			order = append(order, r.MaterialID)
		}
		byMaterial[r.MaterialID] = append(byMaterial[r.MaterialID], r)
	}
	for _, materialID := range order {
		s.publish(ctx, inventory.NewStockConsumedEvent(materialID, cctx, byMaterial[materialID]))
	}

	// An order spanning several materials reports a nil material ID
	materialID := uuid.Nil
	if len(order) == 1 {
		materialID = order[0]
	}
	result := newConsumptionResult(materialID, req.ContextRef, records)

	s.logger.Info("Order fulfilled from reservations",
		zap.String("order_ref", req.OrderRef),
		zap.String("reason", string(req.Reason)),
		zap.String("quantity", result.Quantity.String()),
		zap.Strings("batch_codes", result.BatchCodes),
	)
	return result, nil
}

func (s *ReservationService) noActiveReservationsError(ctx context.Context, repos TransactionalRepositories, orderRef string) error {
	all, err := repos.Reservations().FindByOrder(ctx, orderRef)
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.Status == inventory.ReservationStatusExpired {
			return inventory.ErrReservationExpired.WithDetail("order_ref", orderRef)
		}
	}
	return inventory.ErrReservationNotFound.WithDetail("order_ref", orderRef)
}

// SweepExpired releases active reservations whose TTL passed. Each
// reservation is released in its own transaction; one call handles at most
// one page.
func (s *ReservationService) SweepExpired(ctx context.Context) (*ReleaseResult, error) {
	now := s.now()
	expired, err := s.reservationRepo.FindExpiredActive(ctx, now, s.sweepLimit)
	if err != nil {
		return nil, err
	}

	result := &ReleaseResult{}
	for i := range expired {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		reservation, err := s.expireOne(ctx, expired[i].ID, now)
		if err != nil {
			result.Failed++
			s.logger.Warn("Failed to release expired reservation",
				zap.String("reservation_id", expired[i].ID.String()),
				zap.String("order_ref", expired[i].OrderRef),
				zap.Error(err),
			)
			continue
		}
		if reservation == nil {
			continue
		}
		result.Released++
		s.publish(ctx, inventory.NewReservationReleasedEvent(reservation))
	}

	if result.Released > 0 || result.Failed > 0 {
		s.logger.Info("Expired reservations swept",
			zap.Int("released", result.Released),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// expireOne releases one reservation. It returns nil when another caller
// closed the reservation first.
func (s *ReservationService) expireOne(ctx context.Context, id uuid.UUID, now time.Time) (*inventory.Reservation, error) {
	var released *inventory.Reservation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		released = nil
		current, err := repos.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		batch, err := repos.Batches().FindByIDForUpdate(ctx, current.BatchID)
		if err != nil {
			return err
		}
		// Re-read under the batch lock
		current, err = repos.Reservations().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return nil
		}
		if err := batch.ReleaseReserved(current.Quantity); err != nil {
			return err
		}
		if err := repos.Batches().Update(ctx, batch); err != nil {
			return err
		}
		if err := current.Expire(now); err != nil {
			return err
		}
		if err := repos.Reservations().Update(ctx, current); err != nil {
			return err
		}
		released = current
		return nil
	})
	return released, err
}

// validatePlanInput checks a caller-supplied plan, or the quantity to plan
// for when no plan is given
func validatePlanInput(plan []PlanLineInput, quantity decimal.Decimal) error {
	if len(plan) == 0 {
		if !quantity.IsPositive() {
			return inventory.ErrInvalidRequest.
				WithMessage("Requested quantity must be positive").
				WithDetail("requested", quantity.String())
		}
		return nil
	}
	total := decimal.Zero
	for i, line := range plan {
		if line.BatchID == uuid.Nil {
			return inventory.ErrInvalidRequest.
				WithMessage("Plan line batch ID cannot be empty").
				WithDetail("line", i)
		}
		if !line.Quantity.IsPositive() {
			return inventory.ErrInvalidRequest.
				WithMessage("Plan line quantity must be positive").
				WithDetail("line", i)
		}
		total = total.Add(line.Quantity)
	}
	if !quantity.IsZero() && !quantity.Equal(total) {
		return inventory.ErrInvalidRequest.
			WithMessage("Plan lines do not add up to the requested quantity").
			WithDetail("requested", quantity.String()).
			WithDetail("planned", total.String())
	}
	return nil
}

func planBatchIDs(plan []PlanLineInput) []uuid.UUID {
	ids := make([]uuid.UUID, len(plan))
	for i, line := range plan {
		ids[i] = line.BatchID
	}
	return ids
}

func reservationBatchIDs(reservations []inventory.Reservation) []uuid.UUID {
	ids := make([]uuid.UUID, len(reservations))
	for i, r := range reservations {
		ids[i] = r.BatchID
	}
	return ids
}

// planFromInput turns caller plan lines into an AllocationPlan against the
// locked batches
func (c *ledgerCore) planFromInput(materialID uuid.UUID, lines []PlanLineInput, byID map[uuid.UUID]*inventory.Batch, asOf time.Time, operation string) (*inventory.AllocationPlan, error) {
	plan := &inventory.AllocationPlan{
		MaterialID:        materialID,
		AllocatedQuantity: decimal.Zero,
		TotalCost:         decimal.Zero,
		Shortage:          decimal.Zero,
		FullySatisfied:    true,
		AsOf:              asOf,
		Lines:             make([]inventory.AllocationLine, 0, len(lines)),
	}
	for _, line := range lines {
		batch, ok := byID[line.BatchID]
		if !ok {
			return nil, c.missingBatchError(line.BatchID, operation)
		}
		if batch.MaterialID != materialID {
			return nil, inventory.ErrInvalidRequest.
				WithMessage("Planned batch "+batch.BatchCode+" belongs to another material").
				WithDetail("batch_code", batch.BatchCode)
		}
		cost := line.Quantity.Mul(batch.UnitCost)
		plan.Lines = append(plan.Lines, inventory.AllocationLine{
			BatchID:      batch.ID,
			BatchCode:    batch.BatchCode,
			ReceivedDate: batch.ReceivedDate,
			ExpiryDate:   batch.ExpiryDate,
			Quantity:     line.Quantity,
			UnitCost:     batch.UnitCost,
			LineCost:     cost,
		})
		plan.AllocatedQuantity = plan.AllocatedQuantity.Add(line.Quantity)
		plan.TotalCost = plan.TotalCost.Add(cost)
	}
	plan.RequestedQuantity = plan.AllocatedQuantity
	return plan, nil
}
