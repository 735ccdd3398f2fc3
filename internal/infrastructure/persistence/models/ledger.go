package models

import (
	"encoding/json"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("ledger.models")

// MaterialModel is the persistence model for the Material register entry.
type MaterialModel struct {
	AggregateModel
	Code           string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name           string                 `gorm:"type:varchar(200);not null"`
	Kind           inventory.MaterialKind `gorm:"type:varchar(20);not null"`
	Unit           string                 `gorm:"type:varchar(20);not null"`
	ShelfLifeDays  int                    `gorm:"not null;default:0"`
	OnHandQuantity decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (MaterialModel) TableName() string {
	return "materials"
}

// ToDomain converts the persistence model to a domain Material.
func (m *MaterialModel) ToDomain() *inventory.Material {
	return &inventory.Material{
		BaseAggregateRoot: m.Root(),
		Code:              m.Code,
		Name:              m.Name,
		Kind:              m.Kind,
		Unit:              m.Unit,
		ShelfLifeDays:     m.ShelfLifeDays,
		OnHandQuantity:    m.OnHandQuantity,
	}
}

// FromDomain populates the persistence model from a domain Material.
func (m *MaterialModel) FromDomain(mat *inventory.Material) {
	m.SetRoot(mat.BaseAggregateRoot)
	m.Code = mat.Code
	m.Name = mat.Name
	m.Kind = mat.Kind
	m.Unit = mat.Unit
	m.ShelfLifeDays = mat.ShelfLifeDays
	m.OnHandQuantity = mat.OnHandQuantity
}

// MaterialModelFromDomain creates a new persistence model from a domain Material.
func MaterialModelFromDomain(mat *inventory.Material) *MaterialModel {
	m := &MaterialModel{}
	m.FromDomain(mat)
	return m
}

// BatchModel is the persistence model for the Batch aggregate root.
type BatchModel struct {
	AggregateModel
	MaterialID       uuid.UUID                 `gorm:"type:uuid;not null;index:idx_batches_fifo,priority:1"`
	MaterialKind     inventory.MaterialKind    `gorm:"type:varchar(20);not null"`
	BatchCode        string                    `gorm:"type:varchar(64);not null;uniqueIndex"`
	SourceType       inventory.BatchSourceType `gorm:"type:varchar(30);not null"`
	SourceRef        string                    `gorm:"type:varchar(100);index"`
	QuantityReceived decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	CurrentQuantity  decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	ReservedQuantity decimal.Decimal           `gorm:"type:decimal(18,4);not null;default:0"`
	UnitCost         decimal.Decimal           `gorm:"type:decimal(18,4);not null;default:0"`
	ReceivedDate     time.Time                 `gorm:"not null;index:idx_batches_fifo,priority:3"`
	ProductionDate   *time.Time
	ExpiryDate       *time.Time                `gorm:"index"`
	Status           inventory.BatchStatus     `gorm:"type:varchar(20);not null;index:idx_batches_fifo,priority:2"`
	StorageLocation  string                    `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "batches"
}

// ToDomain converts the persistence model to a domain Batch.
func (m *BatchModel) ToDomain() *inventory.Batch {
	return &inventory.Batch{
		BaseAggregateRoot: m.Root(),
		MaterialID:        m.MaterialID,
		MaterialKind:      m.MaterialKind,
		BatchCode:         m.BatchCode,
		SourceType:        m.SourceType,
		SourceRef:         m.SourceRef,
		QuantityReceived:  m.QuantityReceived,
		CurrentQuantity:   m.CurrentQuantity,
		ReservedQuantity:  m.ReservedQuantity,
		UnitCost:          m.UnitCost,
		ReceivedDate:      m.ReceivedDate,
		ProductionDate:    m.ProductionDate,
		ExpiryDate:        m.ExpiryDate,
		Status:            m.Status,
		StorageLocation:   m.StorageLocation,
	}
}

// FromDomain populates the persistence model from a domain Batch.
func (m *BatchModel) FromDomain(b *inventory.Batch) {
	m.SetRoot(b.BaseAggregateRoot)
	m.MaterialID = b.MaterialID
	m.MaterialKind = b.MaterialKind
	m.BatchCode = b.BatchCode
	m.SourceType = b.SourceType
	m.SourceRef = b.SourceRef
	m.QuantityReceived = b.QuantityReceived
	m.CurrentQuantity = b.CurrentQuantity
	m.ReservedQuantity = b.ReservedQuantity
	m.UnitCost = b.UnitCost
	m.ReceivedDate = b.ReceivedDate
	m.ProductionDate = b.ProductionDate
	m.ExpiryDate = b.ExpiryDate
	m.Status = b.Status
	m.StorageLocation = b.StorageLocation
}

// BatchModelFromDomain creates a new persistence model from a domain Batch.
func BatchModelFromDomain(b *inventory.Batch) *BatchModel {
	m := &BatchModel{}
	m.FromDomain(b)
	return m
}

// ReservationModel is the persistence model for the Reservation entity.
type ReservationModel struct {
	BaseModel
	BatchID      uuid.UUID                   `gorm:"type:uuid;not null;index"`
	MaterialID   uuid.UUID                   `gorm:"type:uuid;not null;index"`
	OrderRef     string                      `gorm:"type:varchar(100);not null;index"`
	OrderLineRef string                      `gorm:"type:varchar(100)"`
	Quantity     decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	Status       inventory.ReservationStatus `gorm:"type:varchar(20);not null;index"`
	ExpiresAt    time.Time                   `gorm:"not null;index"`
	ClosedAt     *time.Time
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "reservations"
}

// ToDomain converts the persistence model to a domain Reservation.
func (m *ReservationModel) ToDomain() *inventory.Reservation {
	return &inventory.Reservation{
		BaseEntity:   m.Entity(),
		BatchID:      m.BatchID,
		MaterialID:   m.MaterialID,
		OrderRef:     m.OrderRef,
		OrderLineRef: m.OrderLineRef,
		Quantity:     m.Quantity,
		Status:       m.Status,
		ExpiresAt:    m.ExpiresAt,
		ClosedAt:     m.ClosedAt,
	}
}

// FromDomain populates the persistence model from a domain Reservation.
func (m *ReservationModel) FromDomain(r *inventory.Reservation) {
	m.SetEntity(r.BaseEntity)
	m.BatchID = r.BatchID
	m.MaterialID = r.MaterialID
	m.OrderRef = r.OrderRef
	m.OrderLineRef = r.OrderLineRef
	m.Quantity = r.Quantity
	m.Status = r.Status
	m.ExpiresAt = r.ExpiresAt
	m.ClosedAt = r.ClosedAt
}

// ReservationModelFromDomain creates a new persistence model from a domain Reservation.
func ReservationModelFromDomain(r *inventory.Reservation) *ReservationModel {
	m := &ReservationModel{}
	m.FromDomain(r)
	return m
}

// ConsumptionRecordModel is the persistence model for the append-only
// consumption log. Rows are never updated.
type ConsumptionRecordModel struct {
	ID                  uuid.UUID                   `gorm:"type:uuid;primary_key"`
	CreatedAt           time.Time                   `gorm:"not null"`
	BatchID             uuid.UUID                   `gorm:"type:uuid;not null;index"`
	BatchCode           string                      `gorm:"type:varchar(64);not null"`
	MaterialID          uuid.UUID                   `gorm:"type:uuid;not null;index:idx_consumption_material_time,priority:1"`
	BatchReceivedDate   time.Time                   `gorm:"not null"`
	Quantity            decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	UnitCost            decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	TotalCost           decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	Reason              inventory.ConsumptionReason `gorm:"type:varchar(20);not null;index:idx_consumption_context,priority:1"`
	ContextRef          string                      `gorm:"type:varchar(100);not null;index:idx_consumption_context,priority:2"`
	ReservationID       *uuid.UUID                  `gorm:"type:uuid"`
	ActorRef            string                      `gorm:"type:varchar(100)"`
	ConsumedAt          time.Time                   `gorm:"not null;index:idx_consumption_material_time,priority:2"`
	BatchRemainingAfter decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	MetadataJSON        string                      `gorm:"column:metadata;type:jsonb;default:'{}'"`
}

// TableName returns the table name for GORM
func (ConsumptionRecordModel) TableName() string {
	return "consumption_records"
}

// ToDomain converts the persistence model to a domain ConsumptionRecord.
func (m *ConsumptionRecordModel) ToDomain() *inventory.ConsumptionRecord {
	r := &inventory.ConsumptionRecord{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.CreatedAt,
		},
		BatchID:             m.BatchID,
		BatchCode:           m.BatchCode,
		MaterialID:          m.MaterialID,
		BatchReceivedDate:   m.BatchReceivedDate,
		Quantity:            m.Quantity,
		UnitCost:            m.UnitCost,
		TotalCost:           m.TotalCost,
		Reason:              m.Reason,
		ContextRef:          m.ContextRef,
		ReservationID:       m.ReservationID,
		ActorRef:            m.ActorRef,
		ConsumedAt:          m.ConsumedAt,
		BatchRemainingAfter: m.BatchRemainingAfter,
	}
	if m.MetadataJSON != "" && m.MetadataJSON != "{}" {
		var metadata map[string]string
		if err := json.Unmarshal([]byte(m.MetadataJSON), &metadata); err != nil {
			modelLogger.Warn("failed to parse consumption metadata JSON",
				zap.String("record_id", m.ID.String()),
				zap.String("raw_json", m.MetadataJSON),
				zap.Error(err))
		} else {
			r.Metadata = metadata
		}
	}
	return r
}

// FromDomain populates the persistence model from a domain ConsumptionRecord.
func (m *ConsumptionRecordModel) FromDomain(r *inventory.ConsumptionRecord) {
	m.ID = r.ID
	m.CreatedAt = r.CreatedAt
	m.BatchID = r.BatchID
	m.BatchCode = r.BatchCode
	m.MaterialID = r.MaterialID
	m.BatchReceivedDate = r.BatchReceivedDate
	m.Quantity = r.Quantity
	m.UnitCost = r.UnitCost
	m.TotalCost = r.TotalCost
	m.Reason = r.Reason
	m.ContextRef = r.ContextRef
	m.ReservationID = r.ReservationID
	m.ActorRef = r.ActorRef
	m.ConsumedAt = r.ConsumedAt
	m.BatchRemainingAfter = r.BatchRemainingAfter

	m.MetadataJSON = "{}"
	if len(r.Metadata) > 0 {
		if jsonBytes, err := json.Marshal(r.Metadata); err == nil {
			m.MetadataJSON = string(jsonBytes)
		}
	}
}

// ConsumptionRecordModelFromDomain creates a new persistence model from a domain ConsumptionRecord.
func ConsumptionRecordModelFromDomain(r *inventory.ConsumptionRecord) *ConsumptionRecordModel {
	m := &ConsumptionRecordModel{}
	m.FromDomain(r)
	return m
}

// SpoilageRecordModel is the persistence model for the SpoilageRecord entity.
// ExpiryKey is the batch ID for EXPIRED records and NULL otherwise; its unique
// index allows at most one expiry record per batch.
type SpoilageRecordModel struct {
	BaseModel
	BatchID         uuid.UUID                `gorm:"type:uuid;not null;index"`
	BatchCode       string                   `gorm:"type:varchar(64);not null"`
	MaterialID      uuid.UUID                `gorm:"type:uuid;not null;index"`
	QuantitySpoiled decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	UnitCost        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	TotalLoss       decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Reason          inventory.SpoilageReason `gorm:"type:varchar(30);not null;index"`
	FifoBypassed    bool                     `gorm:"not null;default:false"`
	Status          inventory.SpoilageStatus `gorm:"type:varchar(20);not null;index"`
	DetectedAt      time.Time                `gorm:"not null;index"`
	ApprovedAt      *time.Time
	WrittenOffAt    *time.Time
	Notes           string                   `gorm:"type:text"`
	ExpiryKey       *uuid.UUID               `gorm:"type:uuid;uniqueIndex"`
}

// TableName returns the table name for GORM
func (SpoilageRecordModel) TableName() string {
	return "spoilage_records"
}

// ToDomain converts the persistence model to a domain SpoilageRecord.
func (m *SpoilageRecordModel) ToDomain() *inventory.SpoilageRecord {
	return &inventory.SpoilageRecord{
		BaseEntity:      m.Entity(),
		BatchID:         m.BatchID,
		BatchCode:       m.BatchCode,
		MaterialID:      m.MaterialID,
		QuantitySpoiled: m.QuantitySpoiled,
		UnitCost:        m.UnitCost,
		TotalLoss:       m.TotalLoss,
		Reason:          m.Reason,
		FifoBypassed:    m.FifoBypassed,
		Status:          m.Status,
		DetectedAt:      m.DetectedAt,
		ApprovedAt:      m.ApprovedAt,
		WrittenOffAt:    m.WrittenOffAt,
		Notes:           m.Notes,
	}
}

// FromDomain populates the persistence model from a domain SpoilageRecord.
func (m *SpoilageRecordModel) FromDomain(s *inventory.SpoilageRecord) {
	m.SetEntity(s.BaseEntity)
	m.BatchID = s.BatchID
	m.BatchCode = s.BatchCode
	m.MaterialID = s.MaterialID
	m.QuantitySpoiled = s.QuantitySpoiled
	m.UnitCost = s.UnitCost
	m.TotalLoss = s.TotalLoss
	m.Reason = s.Reason
	m.FifoBypassed = s.FifoBypassed
	m.Status = s.Status
	m.DetectedAt = s.DetectedAt
	m.ApprovedAt = s.ApprovedAt
	m.WrittenOffAt = s.WrittenOffAt
	m.Notes = s.Notes
	m.ExpiryKey = s.ExpiryKey()
}

// SpoilageRecordModelFromDomain creates a new persistence model from a domain SpoilageRecord.
func SpoilageRecordModelFromDomain(s *inventory.SpoilageRecord) *SpoilageRecordModel {
	m := &SpoilageRecordModel{}
	m.FromDomain(s)
	return m
}

// BatchCodeSequenceModel stores the last issued number per code key
// (prefix, optional source segment and day).
type BatchCodeSequenceModel struct {
	Key       string    `gorm:"column:seq_key;type:varchar(64);primary_key"`
	LastValue int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchCodeSequenceModel) TableName() string {
	return "batch_code_sequences"
}

// AllModels lists every ledger model, in dependency order, for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&MaterialModel{},
		&BatchModel{},
		&ReservationModel{},
		&ConsumptionRecordModel{},
		&SpoilageRecordModel{},
		&BatchCodeSequenceModel{},
	}
}
