package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormMaterialRepository implements MaterialRepository using GORM
type GormMaterialRepository struct {
	db *gorm.DB
}

// NewGormMaterialRepository creates a new GormMaterialRepository
func NewGormMaterialRepository(db *gorm.DB) *GormMaterialRepository {
	return &GormMaterialRepository{db: db}
}

// FindByID finds a material by its ID
func (r *GormMaterialRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Material, error) {
	var model models.MaterialModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrMaterialNotFound.WithDetail("material_id", id.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds a material by its code
func (r *GormMaterialRepository) FindByCode(ctx context.Context, code string) (*inventory.Material, error) {
	var model models.MaterialModel
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrMaterialNotFound.WithDetail("material_code", code)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new material
func (r *GormMaterialRepository) Create(ctx context.Context, material *inventory.Material) error {
	model := models.MaterialModelFromDomain(material)
	return r.db.WithContext(ctx).Create(model).Error
}

// AdjustOnHand adds delta to the on-hand quantity in a single statement
func (r *GormMaterialRepository) AdjustOnHand(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.MaterialModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"on_hand_quantity": gorm.Expr("on_hand_quantity + ?", delta),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrMaterialNotFound.WithDetail("material_id", id.String())
	}
	return nil
}

// Ensure GormMaterialRepository implements MaterialRepository
var _ inventory.MaterialRepository = (*GormMaterialRepository)(nil)
