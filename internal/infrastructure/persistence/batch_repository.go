package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fifoOrder is the allocation order of batches
const fifoOrder = "received_date ASC, id ASC"

// lockOrder is the order row locks are taken in. Every locking read uses it
// so concurrent transactions never wait on each other in a cycle.
const lockOrder = "id ASC"

var allocatableStatuses = []inventory.BatchStatus{
	inventory.BatchStatusReceived,
	inventory.BatchStatusApproved,
}

// GormBatchRepository implements BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBatchRepository) WithTx(tx *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: tx}
}

// FindByID finds a batch by its ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id), "batch_id", id.String())
}

// FindByIDForUpdate finds a batch and locks its row until the transaction ends
func (r *GormBatchRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	query := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id)
	return r.findOne(query, "batch_id", id.String())
}

// FindByCode finds a batch by its code
func (r *GormBatchRepository) FindByCode(ctx context.Context, code string) (*inventory.Batch, error) {
	code = inventory.NormalizeBatchCode(code)
	return r.findOne(r.db.WithContext(ctx).Where("batch_code = ?", code), "batch_code", code)
}

func (r *GormBatchRepository) findOne(query *gorm.DB, key, value string) (*inventory.Batch, error) {
	var model models.BatchModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrBatchNotFound.WithDetail(key, value)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDsForUpdate locks the given batches in batch-id order
func (r *GormBatchRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]inventory.Batch, error) {
	if len(ids) == 0 {
		return []inventory.Batch{}, nil
	}
	return r.find(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order(lockOrder))
}

// FindEligible returns the FIFO candidates of a material as of asOf
func (r *GormBatchRepository) FindEligible(ctx context.Context, materialID uuid.UUID, asOf time.Time) ([]inventory.Batch, error) {
	return r.find(r.eligibleQuery(r.db.WithContext(ctx), materialID, asOf).Order(fifoOrder))
}

// FindEligibleForUpdate is FindEligible with row locks taken in batch-id
// order. The result is returned in FIFO order.
func (r *GormBatchRepository) FindEligibleForUpdate(ctx context.Context, materialID uuid.UUID, asOf time.Time) ([]inventory.Batch, error) {
	query := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	batches, err := r.find(r.eligibleQuery(query, materialID, asOf).Order(lockOrder))
	if err != nil {
		return nil, err
	}
	inventory.SortFIFO(batches)
	return batches, nil
}

func (r *GormBatchRepository) eligibleQuery(query *gorm.DB, materialID uuid.UUID, asOf time.Time) *gorm.DB {
	return query.
		Where("material_id = ?", materialID).
		Where("status IN ?", allocatableStatuses).
		Where("current_quantity > reserved_quantity").
		Where("(expiry_date IS NULL OR expiry_date > ?)", asOf)
}

// FindPastExpiry returns batches the expiry scan has to move to EXPIRED
func (r *GormBatchRepository) FindPastExpiry(ctx context.Context, asOf time.Time, limit int) ([]inventory.Batch, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", allocatableStatuses).
		Where("current_quantity > 0").
		Where("expiry_date IS NOT NULL AND expiry_date < ?", asOf).
		Order("expiry_date ASC, " + fifoOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

// FindProducedBy returns batches created by the given production runs
func (r *GormBatchRepository) FindProducedBy(ctx context.Context, sourceRefs []string) ([]inventory.Batch, error) {
	if len(sourceRefs) == 0 {
		return []inventory.Batch{}, nil
	}
	return r.find(r.db.WithContext(ctx).
		Where("source_type = ? AND source_ref IN ?", inventory.BatchSourceProduction, sourceRefs).
		Order(fifoOrder))
}

// List returns batches matching the filter with the total count
func (r *GormBatchRepository) List(ctx context.Context, filter shared.Filter) ([]inventory.Batch, int64, error) {
	var total int64
	countQuery := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.BatchModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx), filter)
	batches, err := r.find(r.applyPagination(query, filter))
	if err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *GormBatchRepository) applyPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if offset, limit, ok := filter.Window(); ok {
		query = query.Offset(offset).Limit(limit)
	}

	column := batchSortColumns.column(filter.OrderBy)
	if column == "" {
		return query.Order(fifoOrder)
	}
	return orderBy(query, column, descending(filter.OrderDir))
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormBatchRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("batch_code LIKE ?", "%"+strings.ToUpper(filter.Search)+"%")
	}

	for key, value := range filter.Filters {
		switch key {
		case "material_id":
			query = query.Where("material_id = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		case "material_kind":
			query = query.Where("material_kind = ?", value)
		case "source_type":
			query = query.Where("source_type = ?", value)
		case "source_ref":
			query = query.Where("source_ref = ?", value)
		case "expiring_before":
			query = query.Where("expiry_date IS NOT NULL AND expiry_date < ?", value)
		case "has_stock":
			if value == true {
				query = query.Where("current_quantity > 0")
			} else {
				query = query.Where("current_quantity = 0")
			}
		}
	}

	return query
}

func (r *GormBatchRepository) find(query *gorm.DB) ([]inventory.Batch, error) {
	var batchModels []models.BatchModel
	if err := query.Find(&batchModels).Error; err != nil {
		return nil, err
	}
	batches := make([]inventory.Batch, len(batchModels))
	for i, model := range batchModels {
		batches[i] = *model.ToDomain()
	}
	return batches, nil
}

// Create inserts a new batch
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.Batch) error {
	model := models.BatchModelFromDomain(batch)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update saves with optimistic locking (checks version)
func (r *GormBatchRepository) Update(ctx context.Context, batch *inventory.Batch) error {
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ? AND version = ?", batch.ID, batch.Version-1).
		Updates(map[string]any{
			"current_quantity":  batch.CurrentQuantity,
			"reserved_quantity": batch.ReservedQuantity,
			"status":            batch.Status,
			"storage_location":  batch.StorageLocation,
			"version":           batch.Version,
			"updated_at":        batch.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrConcurrencyConflict.
			WithDetail("batch_id", batch.ID.String()).
			WithDetail("batch_code", batch.BatchCode)
	}
	return nil
}

// Ensure GormBatchRepository implements BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
