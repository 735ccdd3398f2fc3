package inventory

import (
	"context"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultReservationTTL is how long a reservation holds stock when the caller gives no TTL
	DefaultReservationTTL = 48 * time.Hour

	// DefaultScanBatchLimit bounds one page of the expiry scan and the reservation sweep
	DefaultScanBatchLimit = 500
)

// ledgerCore carries what every ledger service needs: the transaction scope,
// the event publisher, a logger and the clock
type ledgerCore struct {
	txScope        TransactionScope
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	now            func() time.Time
}

func newLedgerCore(txScope TransactionScope, logger *zap.Logger) ledgerCore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ledgerCore{
		txScope: txScope,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (c *ledgerCore) SetEventPublisher(publisher shared.EventPublisher) {
	c.eventPublisher = publisher
}

// SetClock replaces the clock used for as-of dates and timestamps
func (c *ledgerCore) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// publish sends events after the transaction committed. Failures are logged by
// the bus, not propagated: the ledger state is already durable.
func (c *ledgerCore) publish(ctx context.Context, events ...shared.DomainEvent) {
	if c.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := c.eventPublisher.Publish(ctx, events...); err != nil {
		c.logger.Warn("Failed to publish ledger events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// asOf returns the explicit as-of time or now
func (c *ledgerCore) asOf(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return c.now()
	}
	return t.UTC()
}

// asOfDate is asOf cut to its UTC calendar date. Expiry dates carry no time
// of day, so a batch expiring on day X stays allocatable through X-1 and is
// past expiry from X+1.
func (c *ledgerCore) asOfDate(t *time.Time) time.Time {
	at := c.asOf(t).UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

// eventCollector gathers events raised inside a transaction so they are only
// published once it commits
type eventCollector struct {
	events []shared.DomainEvent
}

func (e *eventCollector) add(events ...shared.DomainEvent) {
	e.events = append(e.events, events...)
}

func (e *eventCollector) drain(root shared.AggregateRoot) {
	e.events = append(e.events, root.GetDomainEvents()...)
	root.ClearDomainEvents()
}

// lockBatches locks the batches referenced by ids and indexes them by ID
func lockBatches(ctx context.Context, repos TransactionalRepositories, ids []uuid.UUID) (map[uuid.UUID]*inventory.Batch, error) {
	batches, err := repos.Batches().FindByIDsForUpdate(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*inventory.Batch, len(batches))
	for i := range batches {
		byID[batches[i].ID] = &batches[i]
	}
	return byID, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// adjustOnHand applies per-material deltas collected during a transaction
func adjustOnHand(ctx context.Context, repos TransactionalRepositories, deltas map[uuid.UUID]decimal.Decimal) error {
	for materialID, delta := range deltas {
		if delta.IsZero() {
			continue
		}
		if err := repos.Materials().AdjustOnHand(ctx, materialID, delta); err != nil {
			return err
		}
	}
	return nil
}

// missingBatchError reports a batch that vanished between planning and commit.
// Nothing is deducted for it.
func (c *ledgerCore) missingBatchError(batchID uuid.UUID, operation string) error {
	c.logger.Error("Batch referenced by the ledger is missing",
		zap.String("batch_id", batchID.String()),
		zap.String("operation", operation),
	)
	return inventory.ErrBatchNotFound.
		WithMessage("Batch " + batchID.String() + " no longer exists").
		WithDetail("batch_id", batchID.String())
}
