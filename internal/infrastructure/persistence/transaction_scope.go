package persistence

import (
	"context"
	"errors"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATEs raised when two writers collide on the same rows
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// GormTransactionScope runs ledger units of work in one database
// transaction. Every repository handed to fn shares that transaction, so row
// locks taken by one are held until commit.
type GormTransactionScope struct {
	db *gorm.DB
}

func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute commits when fn returns nil and rolls back otherwise. Lock and
// uniqueness collisions come back as inventory.ErrConcurrencyConflict so
// callers can retry them like a version miss.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txRepositories{tx: tx})
	})
	return translateConflict(err)
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == "idx_materials_code" {
			return shared.ErrAlreadyExists.WithMessage("Material code already registered")
		}
		return inventory.ErrConcurrencyConflict.
			WithDetail("sqlstate", pgErr.Code).
			WithDetail("constraint", pgErr.ConstraintName)
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return inventory.ErrConcurrencyConflict.
			WithDetail("sqlstate", pgErr.Code).
			WithDetail("constraint", pgErr.ConstraintName)
	}
	return err
}

type txRepositories struct {
	tx *gorm.DB
}

func (r txRepositories) Materials() inventory.MaterialRepository {
	return NewGormMaterialRepository(r.tx)
}

func (r txRepositories) Batches() inventory.BatchRepository {
	return NewGormBatchRepository(r.tx)
}

func (r txRepositories) Reservations() inventory.ReservationRepository {
	return NewGormReservationRepository(r.tx)
}

func (r txRepositories) Consumptions() inventory.ConsumptionRecordRepository {
	return NewGormConsumptionRecordRepository(r.tx)
}

func (r txRepositories) Spoilage() inventory.SpoilageRecordRepository {
	return NewGormSpoilageRecordRepository(r.tx)
}

func (r txRepositories) Sequence() inventory.BatchCodeSequence {
	return NewGormBatchCodeSequence(r.tx)
}

var (
	_ appinv.TransactionScope          = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories = txRepositories{}
)
