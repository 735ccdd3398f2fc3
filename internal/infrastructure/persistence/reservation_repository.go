package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReservationRepository implements ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindByID finds a reservation by its ID
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	var model models.ReservationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrReservationNotFound.
				WithMessage("Reservation not found").
				WithDetail("reservation_id", id.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrder returns every reservation of an order
func (r *GormReservationRepository) FindByOrder(ctx context.Context, orderRef string) ([]inventory.Reservation, error) {
	return r.find(r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC, id ASC"))
}

// FindActiveByOrder returns the active reservations of an order
func (r *GormReservationRepository) FindActiveByOrder(ctx context.Context, orderRef string) ([]inventory.Reservation, error) {
	return r.find(r.db.WithContext(ctx).
		Where("order_ref = ? AND status = ?", orderRef, inventory.ReservationStatusActive).
		Order("created_at ASC, id ASC"))
}

// FindActiveByBatch returns the active reservations on a batch
func (r *GormReservationRepository) FindActiveByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.Reservation, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, inventory.ReservationStatusActive).
		Order("created_at ASC, id ASC"))
}

// FindByBatch returns every reservation on a batch
func (r *GormReservationRepository) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.Reservation, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC"))
}

// FindExpiredActive finds active reservations whose TTL has passed
func (r *GormReservationRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", inventory.ReservationStatusActive, now).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

func (r *GormReservationRepository) find(query *gorm.DB) ([]inventory.Reservation, error) {
	var reservationModels []models.ReservationModel
	if err := query.Find(&reservationModels).Error; err != nil {
		return nil, err
	}
	reservations := make([]inventory.Reservation, len(reservationModels))
	for i, model := range reservationModels {
		reservations[i] = *model.ToDomain()
	}
	return reservations, nil
}

// Create inserts a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, reservation *inventory.Reservation) error {
	model := models.ReservationModelFromDomain(reservation)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update closes a reservation. Only active rows are touched so a reservation
// cannot be closed twice by racing callers.
func (r *GormReservationRepository) Update(ctx context.Context, reservation *inventory.Reservation) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("id = ? AND status = ?", reservation.ID, inventory.ReservationStatusActive).
		Updates(map[string]any{
			"status":     reservation.Status,
			"closed_at":  reservation.ClosedAt,
			"updated_at": reservation.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrConcurrencyConflict.
			WithMessage("Reservation was closed by another transaction").
			WithDetail("reservation_id", reservation.ID.String())
	}
	return nil
}

// Ensure GormReservationRepository implements ReservationRepository
var _ inventory.ReservationRepository = (*GormReservationRepository)(nil)
