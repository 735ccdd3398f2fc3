package handler

import (
	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationHandler exposes the read-only FIFO planner and the scan check
type AllocationHandler struct {
	BaseHandler
	allocation *appinv.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocation *appinv.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocation: allocation}
}

// PreviewAllocationRequest represents a FIFO plan request
// @Description Material and quantity to plan; as_of defaults to now
type PreviewAllocationRequest struct {
	MaterialID string          `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a10"`
	Quantity   decimal.Decimal `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"250"`
	AsOf       string          `json:"as_of" example:"2024-01-05T08:00:00Z"`
}

// ValidateScanRequest represents a scanned lot at a pick step
// @Description Scanned batch code checked against step expected_step (0-based) of the current FIFO pick list
type ValidateScanRequest struct {
	MaterialID   string `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a10"`
	ScannedCode  string `json:"scanned_code" binding:"required,batch_code" example:"RM-20240103-0002"`
	ExpectedStep int    `json:"expected_step" binding:"gte=0" example:"0"`
	AsOf         string `json:"as_of" example:"2024-01-05T08:00:00Z"`
	ActorRef     string `json:"actor_ref" binding:"max=100" example:"picker-12"`
}

// Preview godoc
// @ID           previewAllocation
// @Summary      Preview a FIFO allocation
// @Description  Plan which batches would serve a quantity, oldest received first. Nothing is reserved. A short plan is returned with its shortage, not as an error.
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Param        request body PreviewAllocationRequest true "Allocation request"
// @Success      200 {object} APIResponse[inventory.AllocationPlan]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /allocations/preview [post]
func (h *AllocationHandler) Preview(c *gin.Context) {
	var req PreviewAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}
	asOf, err := parseOptionalDate("as_of", req.AsOf)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	plan, err := h.allocation.PreviewAllocation(c.Request.Context(), appinv.PreviewAllocationRequest{
		MaterialID: materialID,
		Quantity:   req.Quantity,
		AsOf:       asOf,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, plan)
}

// ValidateScan godoc
// @ID           validateScannedBatch
// @Summary      Validate a scanned batch
// @Description  Check a scanned lot against the FIFO pick list. A mismatch answers 200 with match=false and the expected batch.
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Param        request body ValidateScanRequest true "Scan"
// @Success      200 {object} APIResponse[inventory.ScanValidationResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /allocations/validate-scan [post]
func (h *AllocationHandler) ValidateScan(c *gin.Context) {
	var req ValidateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}
	asOf, err := parseOptionalDate("as_of", req.AsOf)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.allocation.ValidateScannedBatch(c.Request.Context(), appinv.ValidateScanRequest{
		MaterialID:   materialID,
		ScannedCode:  req.ScannedCode,
		ExpectedStep: req.ExpectedStep,
		AsOf:         asOf,
		ActorRef:     actorRef(c, req.ActorRef),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
