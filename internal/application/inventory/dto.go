package inventory

import (
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===================== Materials =====================

// RegisterMaterialRequest registers a material the ledger can hold batches of
type RegisterMaterialRequest struct {
	Code          string
	Name          string
	Kind          inventory.MaterialKind
	Unit          string
	ShelfLifeDays int
}

// MaterialResponse represents a material register entry
type MaterialResponse struct {
	ID             uuid.UUID              `json:"id"`
	Code           string                 `json:"code"`
	Name           string                 `json:"name"`
	Kind           inventory.MaterialKind `json:"kind"`
	Unit           string                 `json:"unit"`
	ShelfLifeDays  int                    `json:"shelf_life_days"`
	OnHandQuantity decimal.Decimal        `json:"on_hand_quantity"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ToMaterialResponse converts a domain material
func ToMaterialResponse(m *inventory.Material) MaterialResponse {
	return MaterialResponse{
		ID:             m.ID,
		Code:           m.Code,
		Name:           m.Name,
		Kind:           m.Kind,
		Unit:           m.Unit,
		ShelfLifeDays:  m.ShelfLifeDays,
		OnHandQuantity: m.OnHandQuantity,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ===================== Batches =====================

// ReceiveBatchRequest brings a raw-material or purchased batch into the ledger
type ReceiveBatchRequest struct {
	MaterialID      uuid.UUID
	SourceType      inventory.BatchSourceType
	SourceRef       string // supplier / farm code, PO line
	BatchCode       string // optional; generated when empty
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	ReceivedDate    *time.Time // defaults to now
	ProductionDate  *time.Time
	ExpiryDate      *time.Time // defaults to received/production date + shelf life
	StorageLocation string
}

// RecordProductionOutputRequest creates the finished-goods batch of a production run
type RecordProductionOutputRequest struct {
	MaterialID      uuid.UUID
	ProductionRef   string
	Quantity        decimal.Decimal
	ProductionDate  *time.Time
	ExpiryDate      *time.Time
	StorageLocation string
}

// RejectBatchRequest fails a batch at the quality gate
type RejectBatchRequest struct {
	BatchID  uuid.UUID
	Reason   string
	ActorRef string
}

// BatchListFilter represents filter options for the batch list
type BatchListFilter struct {
	Search         string
	MaterialID     *uuid.UUID
	Status         string
	MaterialKind   string
	SourceType     string
	SourceRef      string
	ExpiringBefore *time.Time
	HasStock       *bool
	Page           int
	PageSize       int
	OrderBy        string
	OrderDir       string
}

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID                uuid.UUID                 `json:"id"`
	MaterialID        uuid.UUID                 `json:"material_id"`
	MaterialKind      inventory.MaterialKind    `json:"material_kind"`
	BatchCode         string                    `json:"batch_code"`
	SourceType        inventory.BatchSourceType `json:"source_type"`
	SourceRef         string                    `json:"source_ref,omitempty"`
	QuantityReceived  decimal.Decimal           `json:"quantity_received"`
	CurrentQuantity   decimal.Decimal           `json:"current_quantity"`
	ReservedQuantity  decimal.Decimal           `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal           `json:"available_quantity"`
	UnitCost          decimal.Decimal           `json:"unit_cost"`
	TotalValue        decimal.Decimal           `json:"total_value"`
	ReceivedDate      time.Time                 `json:"received_date"`
	ProductionDate    *time.Time                `json:"production_date,omitempty"`
	ExpiryDate        *time.Time                `json:"expiry_date,omitempty"`
	Status            inventory.BatchStatus     `json:"status"`
	StorageLocation   string                    `json:"storage_location,omitempty"`
	Version           int                       `json:"version"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// ToBatchResponse converts a domain batch
func ToBatchResponse(b *inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:                b.ID,
		MaterialID:        b.MaterialID,
		MaterialKind:      b.MaterialKind,
		BatchCode:         b.BatchCode,
		SourceType:        b.SourceType,
		SourceRef:         b.SourceRef,
		QuantityReceived:  b.QuantityReceived,
		CurrentQuantity:   b.CurrentQuantity,
		ReservedQuantity:  b.ReservedQuantity,
		AvailableQuantity: b.AvailableQuantity(),
		UnitCost:          b.UnitCost,
		TotalValue:        b.TotalValue(),
		ReceivedDate:      b.ReceivedDate,
		ProductionDate:    b.ProductionDate,
		ExpiryDate:        b.ExpiryDate,
		Status:            b.Status,
		StorageLocation:   b.StorageLocation,
		Version:           b.Version,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

// ToBatchResponses converts a slice of domain batches
func ToBatchResponses(batches []inventory.Batch) []BatchResponse {
	out := make([]BatchResponse, len(batches))
	for i := range batches {
		out[i] = ToBatchResponse(&batches[i])
	}
	return out
}

// ===================== Allocation =====================

// PreviewAllocationRequest asks for a FIFO plan without touching the ledger
type PreviewAllocationRequest struct {
	MaterialID uuid.UUID
	Quantity   decimal.Decimal
	AsOf       *time.Time
}

// PlanLineInput is one line of a plan handed back by the caller
type PlanLineInput struct {
	BatchID  uuid.UUID
	Quantity decimal.Decimal
}

// ValidateScanRequest checks a scanned lot against the FIFO pick list
type ValidateScanRequest struct {
	MaterialID   uuid.UUID
	ScannedCode  string
	ExpectedStep int
	AsOf         *time.Time
	ActorRef     string
}

// ===================== Reservations =====================

// ReserveForOrderRequest reserves stock for an order. When Plan is empty the
// ledger computes a fresh FIFO plan for MaterialID/Quantity.
type ReserveForOrderRequest struct {
	OrderRef     string
	OrderLineRef string
	MaterialID   uuid.UUID
	Quantity     decimal.Decimal
	Plan         []PlanLineInput
	TTL          time.Duration // zero means the configured default
}

// ReservationResponse represents a reservation in API responses
type ReservationResponse struct {
	ID           uuid.UUID                   `json:"id"`
	BatchID      uuid.UUID                   `json:"batch_id"`
	MaterialID   uuid.UUID                   `json:"material_id"`
	OrderRef     string                      `json:"order_ref"`
	OrderLineRef string                      `json:"order_line_ref,omitempty"`
	Quantity     decimal.Decimal             `json:"quantity"`
	Status       inventory.ReservationStatus `json:"status"`
	ExpiresAt    time.Time                   `json:"expires_at"`
	ClosedAt     *time.Time                  `json:"closed_at,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// ToReservationResponse converts a domain reservation
func ToReservationResponse(r *inventory.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:           r.ID,
		BatchID:      r.BatchID,
		MaterialID:   r.MaterialID,
		OrderRef:     r.OrderRef,
		OrderLineRef: r.OrderLineRef,
		Quantity:     r.Quantity,
		Status:       r.Status,
		ExpiresAt:    r.ExpiresAt,
		ClosedAt:     r.ClosedAt,
		CreatedAt:    r.CreatedAt,
	}
}

// ToReservationResponses converts a slice of domain reservations
func ToReservationResponses(reservations []inventory.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, len(reservations))
	for i := range reservations {
		out[i] = ToReservationResponse(&reservations[i])
	}
	return out
}

// ReservationResult is returned by ReserveForOrder
type ReservationResult struct {
	OrderRef       string                    `json:"order_ref"`
	MaterialID     uuid.UUID                 `json:"material_id"`
	Quantity       decimal.Decimal           `json:"quantity"`
	ReservationIDs []uuid.UUID               `json:"reservation_ids"`
	Reservations   []ReservationResponse     `json:"reservations"`
	Plan           *inventory.AllocationPlan `json:"plan"`
	ExpiresAt      time.Time                 `json:"expires_at"`
}

// ReleaseResult is returned by ReleaseReservations and SweepExpired
type ReleaseResult struct {
	Released int `json:"released"`
	Failed   int `json:"failed,omitempty"`
}

// FulfillOrderRequest turns the active reservations of an order into consumption
type FulfillOrderRequest struct {
	OrderRef   string
	Reason     inventory.ConsumptionReason // SALE or PRODUCTION
	ContextRef string                      // defaults to OrderRef
	ActorRef   string
}

// ===================== Consumption =====================

// IssueForProductionRequest issues a raw material to a production run
type IssueForProductionRequest struct {
	MaterialID    uuid.UUID
	Quantity      decimal.Decimal
	ProductionRef string
	ActorRef      string
	Plan          []PlanLineInput
	Metadata      map[string]string
}

// DispatchForSaleRequest dispatches a finished product for a sale
type DispatchForSaleRequest struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	SaleRef   string
	ActorRef  string
	Plan      []PlanLineInput
	Metadata  map[string]string
}

// ConsumptionRecordResponse represents a consumption log line
type ConsumptionRecordResponse struct {
	ID                  uuid.UUID                   `json:"id"`
	BatchID             uuid.UUID                   `json:"batch_id"`
	BatchCode           string                      `json:"batch_code"`
	MaterialID          uuid.UUID                   `json:"material_id"`
	Quantity            decimal.Decimal             `json:"quantity"`
	UnitCost            decimal.Decimal             `json:"unit_cost"`
	TotalCost           decimal.Decimal             `json:"total_cost"`
	Reason              inventory.ConsumptionReason `json:"reason"`
	ContextRef          string                      `json:"context_ref"`
	ReservationID       *uuid.UUID                  `json:"reservation_id,omitempty"`
	ActorRef            string                      `json:"actor_ref,omitempty"`
	ConsumedAt          time.Time                   `json:"consumed_at"`
	BatchRemainingAfter decimal.Decimal             `json:"batch_remaining_after"`
	Metadata            map[string]string           `json:"metadata,omitempty"`
}

// ToConsumptionRecordResponse converts a domain consumption record
func ToConsumptionRecordResponse(r *inventory.ConsumptionRecord) ConsumptionRecordResponse {
	return ConsumptionRecordResponse{
		ID:                  r.ID,
		BatchID:             r.BatchID,
		BatchCode:           r.BatchCode,
		MaterialID:          r.MaterialID,
		Quantity:            r.Quantity,
		UnitCost:            r.UnitCost,
		TotalCost:           r.TotalCost,
		Reason:              r.Reason,
		ContextRef:          r.ContextRef,
		ReservationID:       r.ReservationID,
		ActorRef:            r.ActorRef,
		ConsumedAt:          r.ConsumedAt,
		BatchRemainingAfter: r.BatchRemainingAfter,
		Metadata:            r.Metadata,
	}
}

// ConsumptionResult is returned by every operation that commits consumption
type ConsumptionResult struct {
	MaterialID uuid.UUID                   `json:"material_id"`
	ContextRef string                      `json:"context_ref"`
	Quantity   decimal.Decimal             `json:"quantity"`
	TotalCost  decimal.Decimal             `json:"total_cost"`
	BatchCodes []string                    `json:"batch_codes"`
	Records    []ConsumptionRecordResponse `json:"records"`
}

func newConsumptionResult(materialID uuid.UUID, contextRef string, records []*inventory.ConsumptionRecord) *ConsumptionResult {
	result := &ConsumptionResult{
		MaterialID: materialID,
		ContextRef: contextRef,
		Quantity:   decimal.Zero,
		TotalCost:  decimal.Zero,
		BatchCodes: make([]string, 0, len(records)),
		Records:    make([]ConsumptionRecordResponse, 0, len(records)),
	}
	for _, r := range records {
		result.Quantity = result.Quantity.Add(r.Quantity)
		result.TotalCost = result.TotalCost.Add(r.TotalCost)
		result.BatchCodes = append(result.BatchCodes, r.BatchCode)
		result.Records = append(result.Records, ToConsumptionRecordResponse(r))
	}
	return result
}

// ===================== Spoilage =====================

// RecordSpoilageRequest writes off part or all of a live batch
type RecordSpoilageRequest struct {
	BatchID  uuid.UUID
	Quantity decimal.Decimal
	Reason   inventory.SpoilageReason
	Notes    string
	ActorRef string
}

// DisposeRequest writes off whatever is left of a batch
type DisposeRequest struct {
	BatchID  uuid.UUID
	Reason   inventory.SpoilageReason // defaults to EXPIRED for expired batches, OTHER otherwise
	Notes    string
	ActorRef string
}

// SpoilageListFilter represents filter options for the spoilage register
type SpoilageListFilter struct {
	Search       string
	MaterialID   *uuid.UUID
	BatchID      *uuid.UUID
	Status       string
	Reason       string
	FifoBypassed *bool
	DetectedFrom *time.Time
	DetectedTo   *time.Time
	Page         int
	PageSize     int
	OrderBy      string
	OrderDir     string
}

// SpoilageRecordResponse represents a spoilage register entry
type SpoilageRecordResponse struct {
	ID              uuid.UUID                `json:"id"`
	BatchID         uuid.UUID                `json:"batch_id"`
	BatchCode       string                   `json:"batch_code"`
	MaterialID      uuid.UUID                `json:"material_id"`
	QuantitySpoiled decimal.Decimal          `json:"quantity_spoiled"`
	UnitCost        decimal.Decimal          `json:"unit_cost"`
	TotalLoss       decimal.Decimal          `json:"total_loss"`
	Reason          inventory.SpoilageReason `json:"reason"`
	FifoBypassed    bool                     `json:"fifo_bypassed"`
	Status          inventory.SpoilageStatus `json:"status"`
	DetectedAt      time.Time                `json:"detected_at"`
	ApprovedAt      *time.Time               `json:"approved_at,omitempty"`
	WrittenOffAt    *time.Time               `json:"written_off_at,omitempty"`
	Notes           string                   `json:"notes,omitempty"`
}

// ToSpoilageRecordResponse converts a domain spoilage record
func ToSpoilageRecordResponse(s *inventory.SpoilageRecord) SpoilageRecordResponse {
	return SpoilageRecordResponse{
		ID:              s.ID,
		BatchID:         s.BatchID,
		BatchCode:       s.BatchCode,
		MaterialID:      s.MaterialID,
		QuantitySpoiled: s.QuantitySpoiled,
		UnitCost:        s.UnitCost,
		TotalLoss:       s.TotalLoss,
		Reason:          s.Reason,
		FifoBypassed:    s.FifoBypassed,
		Status:          s.Status,
		DetectedAt:      s.DetectedAt,
		ApprovedAt:      s.ApprovedAt,
		WrittenOffAt:    s.WrittenOffAt,
		Notes:           s.Notes,
	}
}

// ToSpoilageRecordResponses converts a slice of domain spoilage records
func ToSpoilageRecordResponses(records []inventory.SpoilageRecord) []SpoilageRecordResponse {
	out := make([]SpoilageRecordResponse, len(records))
	for i := range records {
		out[i] = ToSpoilageRecordResponse(&records[i])
	}
	return out
}

// ExpiredBatch summarizes one batch moved to EXPIRED by a scan
type ExpiredBatch struct {
	BatchID          uuid.UUID       `json:"batch_id"`
	BatchCode        string          `json:"batch_code"`
	MaterialID       uuid.UUID       `json:"material_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReleasedReserved decimal.Decimal `json:"released_reserved"`
	FifoBypassed     bool            `json:"fifo_bypassed"`
}

// ScanFailure reports a batch the scan could not process
type ScanFailure struct {
	BatchID   uuid.UUID `json:"batch_id"`
	BatchCode string    `json:"batch_code"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

// ScanResult is returned by ScanExpired
type ScanResult struct {
	AsOf            time.Time                `json:"as_of"`
	ExpiredBatches  []ExpiredBatch           `json:"expired_batches"`
	SpoilageRecords []SpoilageRecordResponse `json:"spoilage_records"`
	Failures        []ScanFailure            `json:"failures"`
}

// SpoilageResult is returned by RecordSpoilage and Dispose
type SpoilageResult struct {
	Spoilage    SpoilageRecordResponse     `json:"spoilage"`
	Batch       BatchResponse              `json:"batch"`
	Consumption *ConsumptionRecordResponse `json:"consumption,omitempty"`
}

// SpoilageRegisterExport is the rendered spoilage register
type SpoilageRegisterExport struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	Location    string `json:"location,omitempty"` // archive location when archived
	Rows        int    `json:"rows"`
}

// ===================== Traceability =====================

// TraceabilitySummary aggregates the consumption log of a batch by reason
type TraceabilitySummary struct {
	ConsumedProduction decimal.Decimal `json:"consumed_production"`
	ConsumedSale       decimal.Decimal `json:"consumed_sale"`
	Spoiled            decimal.Decimal `json:"spoiled"`
	Adjusted           decimal.Decimal `json:"adjusted"`
	Reserved           decimal.Decimal `json:"reserved"`
	Remaining          decimal.Decimal `json:"remaining"`
}

// TraceabilityReport is receipt -> consumption -> status for one batch
type TraceabilityReport struct {
	Batch        BatchResponse               `json:"batch"`
	Summary      TraceabilitySummary         `json:"summary"`
	Consumptions []ConsumptionRecordResponse `json:"consumptions"`
	Reservations []ReservationResponse       `json:"reservations"`
	Spoilage     []SpoilageRecordResponse    `json:"spoilage"`
	// Ingredients are the consumption records of the production run that
	// produced this batch (finished goods only)
	Ingredients []ConsumptionRecordResponse `json:"ingredients,omitempty"`
	// Downstream are the finished-goods batches produced from this batch
	Downstream []BatchResponse `json:"downstream,omitempty"`
}
