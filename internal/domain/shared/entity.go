package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and audit timestamps for ledger rows
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch records a modification at the given instant
func (e *BaseEntity) Touch(at time.Time) {
	e.UpdatedAt = at
}

// NewBaseEntity stamps a random (v4) ID
func NewBaseEntity() BaseEntity {
	return newEntity(uuid.New())
}

// NewOrderedBaseEntity stamps a time-ordered (v7) ID. IDs minted by one
// process sort in creation order, so queries can use the ID as the final
// tie-breaker after the business ordering columns.
func NewOrderedBaseEntity() BaseEntity {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return newEntity(id)
}

func newEntity(id uuid.UUID) BaseEntity {
	now := time.Now()
	return BaseEntity{ID: id, CreatedAt: now, UpdatedAt: now}
}
