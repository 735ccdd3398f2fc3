package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"gorm.io/gorm"
)

// upsertSequenceSQL increments a key atomically. Both PostgreSQL and SQLite
// (3.35+) accept ON CONFLICT ... RETURNING.
const upsertSequenceSQL = `INSERT INTO batch_code_sequences (seq_key, last_value, updated_at)
VALUES (?, 1, ?)
ON CONFLICT (seq_key) DO UPDATE
SET last_value = batch_code_sequences.last_value + 1, updated_at = excluded.updated_at
RETURNING last_value`

// GormBatchCodeSequence hands out batch code numbers from the batch_code_sequences table
type GormBatchCodeSequence struct {
	db *gorm.DB
}

// NewGormBatchCodeSequence creates a new GormBatchCodeSequence
func NewGormBatchCodeSequence(db *gorm.DB) *GormBatchCodeSequence {
	return &GormBatchCodeSequence{db: db}
}

// Next returns the next number for key, starting at 1
func (s *GormBatchCodeSequence) Next(ctx context.Context, key string) (int64, error) {
	var value int64
	if err := s.db.WithContext(ctx).Raw(upsertSequenceSQL, key, time.Now()).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("increment sequence %s: no value returned", key)
	}
	return value, nil
}

// Ensure GormBatchCodeSequence implements BatchCodeSequence
var _ inventory.BatchCodeSequence = (*GormBatchCodeSequence)(nil)
