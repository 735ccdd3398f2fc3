package inventory

import (
	"context"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaterialRepository defines the interface for material register persistence
type MaterialRepository interface {
	// FindByID finds a material by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Material, error)

	// FindByCode finds a material by its code
	FindByCode(ctx context.Context, code string) (*Material, error)

	// Create inserts a new material
	Create(ctx context.Context, material *Material) error

	// AdjustOnHand adds delta (which may be negative) to the on-hand quantity
	AdjustOnHand(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// BatchRepository defines the interface for batch ledger persistence.
//
// Every method that returns several batches for update locks them in
// batch-id order so that concurrent transactions acquire row locks in the
// same sequence.
type BatchRepository interface {
	// FindByID finds a batch by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindByIDForUpdate finds a batch and takes a row lock on it
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindByCode finds a batch by its code
	FindByCode(ctx context.Context, code string) (*Batch, error)

	// FindByIDsForUpdate locks the given batches. Missing IDs are simply absent
	// from the result.
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]Batch, error)

	// FindEligible returns allocatable, unexpired batches with stock of a
	// material, oldest first
	FindEligible(ctx context.Context, materialID uuid.UUID, asOf time.Time) ([]Batch, error)

	// FindEligibleForUpdate is FindEligible with row locks; the result is
	// still in FIFO order
	FindEligibleForUpdate(ctx context.Context, materialID uuid.UUID, asOf time.Time) ([]Batch, error)

	// FindPastExpiry returns allocatable batches with stock whose expiry date
	// lies strictly before asOf
	FindPastExpiry(ctx context.Context, asOf time.Time, limit int) ([]Batch, error)

	// FindProducedBy returns finished-goods batches whose source reference is
	// one of the given production references
	FindProducedBy(ctx context.Context, sourceRefs []string) ([]Batch, error)

	// List returns batches matching the filter
	List(ctx context.Context, filter shared.Filter) ([]Batch, int64, error)

	// Create inserts a new batch
	Create(ctx context.Context, batch *Batch) error

	// Update saves a batch with optimistic locking. The batch version must
	// already be incremented; the row is only written when the stored version
	// is one behind.
	Update(ctx context.Context, batch *Batch) error
}

// ReservationRepository defines the interface for reservation persistence
type ReservationRepository interface {
	// FindByID finds a reservation by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// FindByOrder returns every reservation of an order, any status
	FindByOrder(ctx context.Context, orderRef string) ([]Reservation, error)

	// FindActiveByOrder returns the active reservations of an order
	FindActiveByOrder(ctx context.Context, orderRef string) ([]Reservation, error)

	// FindActiveByBatch returns the active reservations on a batch
	FindActiveByBatch(ctx context.Context, batchID uuid.UUID) ([]Reservation, error)

	// FindByBatch returns every reservation on a batch
	FindByBatch(ctx context.Context, batchID uuid.UUID) ([]Reservation, error)

	// FindExpiredActive returns active reservations whose TTL passed before now
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]Reservation, error)

	// Create inserts a new reservation
	Create(ctx context.Context, reservation *Reservation) error

	// Update saves the status of a reservation
	Update(ctx context.Context, reservation *Reservation) error
}

// ConsumptionRecordRepository is the append-only traceability log
type ConsumptionRecordRepository interface {
	// Append inserts records; existing records are never modified
	Append(ctx context.Context, records ...*ConsumptionRecord) error

	// FindByBatch returns the records of a batch, oldest first
	FindByBatch(ctx context.Context, batchID uuid.UUID) ([]ConsumptionRecord, error)

	// FindByContext returns the records of a consuming context, oldest first
	FindByContext(ctx context.Context, reason ConsumptionReason, contextRef string) ([]ConsumptionRecord, error)

	// FindByMaterialWindow returns the records of a material consumed in [from, to)
	FindByMaterialWindow(ctx context.Context, materialID uuid.UUID, from, to time.Time) ([]ConsumptionRecord, error)
}

// SpoilageRecordRepository defines the interface for spoilage register persistence
type SpoilageRecordRepository interface {
	// FindByID finds a spoilage record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SpoilageRecord, error)

	// FindExpiryRecord returns the EXPIRED record of a batch, or ErrSpoilageNotFound
	FindExpiryRecord(ctx context.Context, batchID uuid.UUID) (*SpoilageRecord, error)

	// FindOpenByBatch returns records of a batch that are not written off yet
	FindOpenByBatch(ctx context.Context, batchID uuid.UUID) ([]SpoilageRecord, error)

	// FindByBatch returns every record of a batch
	FindByBatch(ctx context.Context, batchID uuid.UUID) ([]SpoilageRecord, error)

	// List returns records matching the filter
	List(ctx context.Context, filter shared.Filter) ([]SpoilageRecord, int64, error)

	// Create inserts a new record
	Create(ctx context.Context, record *SpoilageRecord) error

	// Update saves the status of a record
	Update(ctx context.Context, record *SpoilageRecord) error
}
