package inventory

import (
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MaterialKind distinguishes raw-material batches from finished-goods batches
type MaterialKind string

const (
	// MaterialKindRaw covers raw milk, cultures, packaging and other inputs
	MaterialKindRaw MaterialKind = "RAW"
	// MaterialKindFinished covers products coming out of production runs
	MaterialKindFinished MaterialKind = "FINISHED"
)

// IsValid checks if the material kind is valid
func (k MaterialKind) IsValid() bool {
	switch k {
	case MaterialKindRaw, MaterialKindFinished:
		return true
	}
	return false
}

// String returns the string representation
func (k MaterialKind) String() string {
	return string(k)
}

// Material is the minimal material register entry the ledger depends on.
// OnHandQuantity is the aggregate of current_quantity over all batches that
// have not been written off; it is maintained inside the same transactions
// that mutate batches.
type Material struct {
	shared.BaseAggregateRoot
	Code           string
	Name           string
	Kind           MaterialKind
	Unit           string
	ShelfLifeDays  int
	OnHandQuantity decimal.Decimal
}

// NewMaterial creates a new material register entry
func NewMaterial(code, name string, kind MaterialKind, unit string, shelfLifeDays int) (*Material, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return nil, invalidRequest("Material code cannot be empty")
	}
	if len(code) > 50 {
		return nil, invalidRequest("Material code cannot exceed 50 characters")
	}
	if strings.TrimSpace(name) == "" {
		return nil, invalidRequest("Material name cannot be empty")
	}
	if !kind.IsValid() {
		return nil, invalidRequest("Material kind must be RAW or FINISHED")
	}
	if shelfLifeDays < 0 {
		return nil, invalidRequest("Shelf life cannot be negative")
	}
	if unit == "" {
		unit = "kg"
	}
	return &Material{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              strings.TrimSpace(name),
		Kind:              kind,
		Unit:              unit,
		ShelfLifeDays:     shelfLifeDays,
		OnHandQuantity:    decimal.Zero,
	}, nil
}

// DefaultExpiry returns the expiry date implied by the shelf life, or nil when
// the material does not expire
func (m *Material) DefaultExpiry(from time.Time) *time.Time {
	if m.ShelfLifeDays <= 0 {
		return nil
	}
	expiry := startOfDay(from).AddDate(0, 0, m.ShelfLifeDays)
	return &expiry
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
