package inventory

import (
	"context"

	"github.com/dairyflow/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to ledger repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Batch quantities, reservation rows, consumption records, spoilage records and the
// material on-hand figure must always move together; a service never touches one of
// them outside the transaction that touches the others.
type TransactionalRepositories interface {
	// Materials returns the material repository scoped to the current transaction
	Materials() inventory.MaterialRepository
	// Batches returns the batch repository scoped to the current transaction
	Batches() inventory.BatchRepository
	// Reservations returns the reservation repository scoped to the current transaction
	Reservations() inventory.ReservationRepository
	// Consumptions returns the consumption log scoped to the current transaction
	Consumptions() inventory.ConsumptionRecordRepository
	// Spoilage returns the spoilage register scoped to the current transaction
	Spoilage() inventory.SpoilageRecordRepository
	// Sequence returns the batch code sequence scoped to the current transaction
	Sequence() inventory.BatchCodeSequence
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	materials    inventory.MaterialRepository
	batches      inventory.BatchRepository
	reservations inventory.ReservationRepository
	consumptions inventory.ConsumptionRecordRepository
	spoilage     inventory.SpoilageRecordRepository
	sequence     inventory.BatchCodeSequence
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	materials inventory.MaterialRepository,
	batches inventory.BatchRepository,
	reservations inventory.ReservationRepository,
	consumptions inventory.ConsumptionRecordRepository,
	spoilage inventory.SpoilageRecordRepository,
	sequence inventory.BatchCodeSequence,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		materials:    materials,
		batches:      batches,
		reservations: reservations,
		consumptions: consumptions,
		spoilage:     spoilage,
		sequence:     sequence,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Materials returns the material repository.
func (s *NoOpTransactionScope) Materials() inventory.MaterialRepository { return s.materials }

// Batches returns the batch repository.
func (s *NoOpTransactionScope) Batches() inventory.BatchRepository { return s.batches }

// Reservations returns the reservation repository.
func (s *NoOpTransactionScope) Reservations() inventory.ReservationRepository { return s.reservations }

// Consumptions returns the consumption log.
func (s *NoOpTransactionScope) Consumptions() inventory.ConsumptionRecordRepository {
	return s.consumptions
}

// Spoilage returns the spoilage register.
func (s *NoOpTransactionScope) Spoilage() inventory.SpoilageRecordRepository { return s.spoilage }

// Sequence returns the batch code sequence.
func (s *NoOpTransactionScope) Sequence() inventory.BatchCodeSequence { return s.sequence }

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
