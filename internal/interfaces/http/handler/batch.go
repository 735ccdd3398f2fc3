package handler

import (
	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchHandler handles batch receipt, the quality gate, listing and traceability
type BatchHandler struct {
	BaseHandler
	batches      *appinv.BatchService
	traceability *appinv.TraceabilityService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batches *appinv.BatchService, traceability *appinv.TraceabilityService) *BatchHandler {
	return &BatchHandler{batches: batches, traceability: traceability}
}

// ===================== Request Types =====================

// ReceiveBatchRequest represents a request to receive a batch
// @Description Raw-material or purchased batch entering the ledger. batch_code is generated when omitted.
type ReceiveBatchRequest struct {
	MaterialID      string          `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a10"`
	SourceType      string          `json:"source_type" binding:"omitempty,oneof=RAW_RECEIPT PURCHASE_RECEIPT ADJUSTMENT" example:"RAW_RECEIPT"`
	SourceRef       string          `json:"source_ref" binding:"max=100" example:"FARM-07"`
	BatchCode       string          `json:"batch_code" binding:"omitempty,batch_code" example:"RM-20240105-0001"`
	Quantity        decimal.Decimal `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"1000"`
	UnitCost        decimal.Decimal `json:"unit_cost" binding:"decimal_gte0" swaggertype:"string" example:"0.42"`
	ReceivedDate    string          `json:"received_date" example:"2024-01-05"`
	ProductionDate  string          `json:"production_date" example:"2024-01-04"`
	ExpiryDate      string          `json:"expiry_date" example:"2024-01-08"`
	StorageLocation string          `json:"storage_location" binding:"max=100" example:"COLD-1"`
}

// RecordProductionOutputRequest represents the output of a production run
// @Description Finished-goods batch costed from the run's ingredient consumption
type RecordProductionOutputRequest struct {
	MaterialID      string          `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a11"`
	ProductionRef   string          `json:"production_ref" binding:"required,min=1,max=100" example:"RUN-2024-0105-A"`
	Quantity        decimal.Decimal `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"400"`
	ProductionDate  string          `json:"production_date" example:"2024-01-05"`
	ExpiryDate      string          `json:"expiry_date" example:"2024-01-19"`
	StorageLocation string          `json:"storage_location" binding:"max=100" example:"COLD-2"`
}

// RejectBatchRequest represents a quality-gate rejection
// @Description Reason a batch failed the quality gate
type RejectBatchRequest struct {
	Reason   string `json:"reason" binding:"required,min=1,max=500" example:"Antibiotic residue test positive"`
	ActorRef string `json:"actor_ref" binding:"max=100" example:"qa-anna"`
}

// ===================== Handlers =====================

// Receive godoc
// @ID           receiveBatch
// @Summary      Receive a batch
// @Description  Bring a raw-material or purchased batch into the ledger and raise the material's on-hand quantity
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        request body ReceiveBatchRequest true "Batch receipt"
// @Success      201 {object} APIResponse[appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches [post]
func (h *BatchHandler) Receive(c *gin.Context) {
	var req ReceiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}
	receivedDate, err := parseOptionalDate("received_date", req.ReceivedDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	productionDate, err := parseOptionalDate("production_date", req.ProductionDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	expiryDate, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	batch, err := h.batches.ReceiveBatch(c.Request.Context(), appinv.ReceiveBatchRequest{
		MaterialID:      materialID,
		SourceType:      inventory.BatchSourceType(req.SourceType),
		SourceRef:       req.SourceRef,
		BatchCode:       req.BatchCode,
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		ReceivedDate:    receivedDate,
		ProductionDate:  productionDate,
		ExpiryDate:      expiryDate,
		StorageLocation: req.StorageLocation,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, batch)
}

// RecordProductionOutput godoc
// @ID           recordProductionOutput
// @Summary      Record production output
// @Description  Create the finished-goods batch of a production run. Unit cost is the run's ingredient cost over the output quantity.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        request body RecordProductionOutputRequest true "Production output"
// @Success      201 {object} APIResponse[appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /production-outputs [post]
func (h *BatchHandler) RecordProductionOutput(c *gin.Context) {
	var req RecordProductionOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}
	productionDate, err := parseOptionalDate("production_date", req.ProductionDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	expiryDate, err := parseOptionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	batch, err := h.batches.RecordProductionOutput(c.Request.Context(), appinv.RecordProductionOutputRequest{
		MaterialID:      materialID,
		ProductionRef:   req.ProductionRef,
		Quantity:        req.Quantity,
		ProductionDate:  productionDate,
		ExpiryDate:      expiryDate,
		StorageLocation: req.StorageLocation,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, batch)
}

// GetByID godoc
// @ID           getBatch
// @Summary      Get a batch
// @Description  Retrieve a batch with its current, reserved and available quantities
// @Tags         batches
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/{id} [get]
func (h *BatchHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batch)
}

// List godoc
// @ID           listBatches
// @Summary      List batches
// @Description  Retrieve a paginated list of batches with optional filtering
// @Tags         batches
// @Produce      json
// @Param        search query string false "Search batch code or source reference"
// @Param        material_id query string false "Filter by material ID" format(uuid)
// @Param        status query string false "Filter by status" Enums(RECEIVED, APPROVED, CONSUMED, EXPIRED, DISPOSED, REJECTED)
// @Param        material_kind query string false "Filter by material kind" Enums(RAW, FINISHED)
// @Param        source_type query string false "Filter by source type" Enums(RAW_RECEIPT, PURCHASE_RECEIPT, PRODUCTION, ADJUSTMENT)
// @Param        source_ref query string false "Filter by source reference"
// @Param        expiring_before query string false "Only batches expiring before this date"
// @Param        has_stock query boolean false "Filter by remaining stock"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(received_date)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(asc)
// @Success      200 {object} APIResponse[[]appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := appinv.BatchListFilter{
		Search:       c.Query("search"),
		Status:       c.Query("status"),
		MaterialKind: c.Query("material_kind"),
		SourceType:   c.Query("source_type"),
		SourceRef:    c.Query("source_ref"),
		OrderBy:      c.Query("order_by"),
		OrderDir:     c.Query("order_dir"),
	}
	filter.Page, filter.PageSize = pagination(c)

	var err error
	if filter.MaterialID, err = parseOptionalUUID("material_id", c.Query("material_id")); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if filter.ExpiringBefore, err = parseOptionalDate("expiring_before", c.Query("expiring_before")); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if filter.HasStock, err = parseOptionalBool("has_stock", c.Query("has_stock")); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.batches.ListBatches(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Approve godoc
// @ID           approveBatch
// @Summary      Approve a batch
// @Description  Pass a RECEIVED batch through the quality gate
// @Tags         batches
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} APIResponse[appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/{id}/approve [post]
func (h *BatchHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	batch, err := h.batches.ApproveBatch(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batch)
}

// Reject godoc
// @ID           rejectBatch
// @Summary      Reject a batch
// @Description  Fail a batch at the quality gate. Its stock is zeroed and its reservations are released.
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Param        request body RejectBatchRequest true "Rejection"
// @Success      200 {object} APIResponse[appinv.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/{id}/reject [post]
func (h *BatchHandler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	var req RejectBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	batch, err := h.batches.RejectBatch(c.Request.Context(), appinv.RejectBatchRequest{
		BatchID:  id,
		Reason:   req.Reason,
		ActorRef: actorRef(c, req.ActorRef),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batch)
}

// Trace godoc
// @ID           traceBatch
// @Summary      Trace a batch
// @Description  Receipt, consumption, reservations, spoilage and production links of one batch, looked up by code
// @Tags         batches
// @Produce      json
// @Param        code path string true "Batch code as printed or scanned"
// @Success      200 {object} APIResponse[appinv.TraceabilityReport]
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/trace/{code} [get]
func (h *BatchHandler) Trace(c *gin.Context) {
	report, err := h.traceability.GetTraceability(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
