package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSpoilageRecordRepository implements SpoilageRecordRepository using GORM
type GormSpoilageRecordRepository struct {
	db *gorm.DB
}

// NewGormSpoilageRecordRepository creates a new GormSpoilageRecordRepository
func NewGormSpoilageRecordRepository(db *gorm.DB) *GormSpoilageRecordRepository {
	return &GormSpoilageRecordRepository{db: db}
}

// FindByID finds a spoilage record by its ID
func (r *GormSpoilageRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.SpoilageRecord, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id), "spoilage_id", id.String())
}

// FindExpiryRecord returns the EXPIRED record of a batch
func (r *GormSpoilageRecordRepository) FindExpiryRecord(ctx context.Context, batchID uuid.UUID) (*inventory.SpoilageRecord, error) {
	return r.findOne(r.db.WithContext(ctx).Where("expiry_key = ?", batchID), "batch_id", batchID.String())
}

func (r *GormSpoilageRecordRepository) findOne(query *gorm.DB, key, value string) (*inventory.SpoilageRecord, error) {
	var model models.SpoilageRecordModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrSpoilageNotFound.WithDetail(key, value)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenByBatch returns records of a batch that are not written off yet
func (r *GormSpoilageRecordRepository) FindOpenByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.SpoilageRecord, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_id = ? AND status <> ?", batchID, inventory.SpoilageStatusWrittenOff).
		Order("detected_at ASC, id ASC"))
}

// FindByBatch returns every record of a batch
func (r *GormSpoilageRecordRepository) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.SpoilageRecord, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("detected_at ASC, id ASC"))
}

// List returns records matching the filter with the total count
func (r *GormSpoilageRecordRepository) List(ctx context.Context, filter shared.Filter) ([]inventory.SpoilageRecord, int64, error) {
	var total int64
	countQuery := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.SpoilageRecordModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx), filter)
	if offset, limit, ok := filter.Window(); ok {
		query = query.Offset(offset).Limit(limit)
	}
	column := spoilageSortColumns.column(filter.OrderBy)
	if column == "" {
		column = "detected_at"
	}
	query = orderBy(query, column, descending(filter.OrderDir))

	records, err := r.find(query)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormSpoilageRecordRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("batch_code LIKE ?", "%"+strings.ToUpper(filter.Search)+"%")
	}

	for key, value := range filter.Filters {
		switch key {
		case "material_id":
			query = query.Where("material_id = ?", value)
		case "batch_id":
			query = query.Where("batch_id = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		case "reason":
			query = query.Where("reason = ?", value)
		case "fifo_bypassed":
			query = query.Where("fifo_bypassed = ?", value)
		case "detected_from":
			query = query.Where("detected_at >= ?", value)
		case "detected_to":
			query = query.Where("detected_at < ?", value)
		}
	}

	return query
}

func (r *GormSpoilageRecordRepository) find(query *gorm.DB) ([]inventory.SpoilageRecord, error) {
	var recordModels []models.SpoilageRecordModel
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]inventory.SpoilageRecord, len(recordModels))
	for i, model := range recordModels {
		records[i] = *model.ToDomain()
	}
	return records, nil
}

// Create inserts a new record. A second EXPIRED record for the same batch
// violates the expiry_key unique index.
func (r *GormSpoilageRecordRepository) Create(ctx context.Context, record *inventory.SpoilageRecord) error {
	model := models.SpoilageRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update saves the status of a record
func (r *GormSpoilageRecordRepository) Update(ctx context.Context, record *inventory.SpoilageRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.SpoilageRecordModel{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"status":         record.Status,
			"approved_at":    record.ApprovedAt,
			"written_off_at": record.WrittenOffAt,
			"notes":          record.Notes,
			"updated_at":     record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrSpoilageNotFound.WithDetail("spoilage_id", record.ID.String())
	}
	return nil
}

// Ensure GormSpoilageRecordRepository implements SpoilageRecordRepository
var _ inventory.SpoilageRecordRepository = (*GormSpoilageRecordRepository)(nil)
