package persistence

import (
	"context"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormConsumptionRecordRepository implements the append-only consumption log using GORM
type GormConsumptionRecordRepository struct {
	db *gorm.DB
}

// NewGormConsumptionRecordRepository creates a new GormConsumptionRecordRepository
func NewGormConsumptionRecordRepository(db *gorm.DB) *GormConsumptionRecordRepository {
	return &GormConsumptionRecordRepository{db: db}
}

// Append inserts consumption records
func (r *GormConsumptionRecordRepository) Append(ctx context.Context, records ...*inventory.ConsumptionRecord) error {
	if len(records) == 0 {
		return nil
	}
	recordModels := make([]*models.ConsumptionRecordModel, len(records))
	for i, rec := range records {
		recordModels[i] = models.ConsumptionRecordModelFromDomain(rec)
	}
	return r.db.WithContext(ctx).Create(recordModels).Error
}

// FindByBatch returns the records of a batch, oldest first
func (r *GormConsumptionRecordRepository) FindByBatch(ctx context.Context, batchID uuid.UUID) ([]inventory.ConsumptionRecord, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("consumed_at ASC, id ASC"))
}

// FindByContext returns the records of a consuming context, oldest first
func (r *GormConsumptionRecordRepository) FindByContext(ctx context.Context, reason inventory.ConsumptionReason, contextRef string) ([]inventory.ConsumptionRecord, error) {
	return r.find(r.db.WithContext(ctx).
		Where("reason = ? AND context_ref = ?", reason, contextRef).
		Order("consumed_at ASC, id ASC"))
}

// FindByMaterialWindow returns the records of a material consumed in [from, to)
func (r *GormConsumptionRecordRepository) FindByMaterialWindow(ctx context.Context, materialID uuid.UUID, from, to time.Time) ([]inventory.ConsumptionRecord, error) {
	return r.find(r.db.WithContext(ctx).
		Where("material_id = ? AND consumed_at >= ? AND consumed_at < ?", materialID, from, to).
		Order("consumed_at ASC, id ASC"))
}

func (r *GormConsumptionRecordRepository) find(query *gorm.DB) ([]inventory.ConsumptionRecord, error) {
	var recordModels []models.ConsumptionRecordModel
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]inventory.ConsumptionRecord, len(recordModels))
	for i, model := range recordModels {
		records[i] = *model.ToDomain()
	}
	return records, nil
}

// Ensure GormConsumptionRecordRepository implements ConsumptionRecordRepository
var _ inventory.ConsumptionRecordRepository = (*GormConsumptionRecordRepository)(nil)
