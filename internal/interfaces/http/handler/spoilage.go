package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpoilageHandler handles expiry scans, spoilage, disposal and the spoilage register
type SpoilageHandler struct {
	BaseHandler
	spoilage *appinv.SpoilageService
}

// NewSpoilageHandler creates a new SpoilageHandler
func NewSpoilageHandler(spoilage *appinv.SpoilageService) *SpoilageHandler {
	return &SpoilageHandler{spoilage: spoilage}
}

// RecordSpoilageRequest represents a partial or full write-off of a live batch
// @Description Quantity lost from a batch and why
type RecordSpoilageRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"20"`
	Reason   string          `json:"reason" binding:"required,oneof=EXPIRED DAMAGED QUALITY_FAILURE CONTAMINATED OTHER" example:"DAMAGED"`
	Notes    string          `json:"notes" binding:"max=1000" example:"Pallet dropped at dock 2"`
	ActorRef string          `json:"actor_ref" binding:"max=100" example:"store-1"`
}

// DisposeRequest represents the disposal of what is left of a batch
// @Description reason defaults to EXPIRED for expired batches and OTHER otherwise
type DisposeRequest struct {
	Reason   string `json:"reason" binding:"omitempty,oneof=EXPIRED DAMAGED QUALITY_FAILURE CONTAMINATED OTHER" example:"EXPIRED"`
	Notes    string `json:"notes" binding:"max=1000" example:"Sent to rendering"`
	ActorRef string `json:"actor_ref" binding:"max=100" example:"store-1"`
}

// ScanExpiredRequest represents a manual expiry scan
// @Description as_of defaults to now
type ScanExpiredRequest struct {
	AsOf string `json:"as_of" example:"2024-01-08T00:00:00Z"`
}

// Record godoc
// @ID           recordSpoilage
// @Summary      Record spoilage
// @Description  Write off part or all of a live batch. The loss is costed at the batch's unit cost.
// @Tags         spoilage
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        id path string true "Batch ID" format(uuid)
// @Param        request body RecordSpoilageRequest true "Spoilage"
// @Success      201 {object} APIResponse[appinv.SpoilageResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/{id}/spoilage [post]
func (h *SpoilageHandler) Record(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	var req RecordSpoilageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.spoilage.RecordSpoilage(c.Request.Context(), appinv.RecordSpoilageRequest{
		BatchID:  batchID,
		Quantity: req.Quantity,
		Reason:   inventory.SpoilageReason(req.Reason),
		Notes:    req.Notes,
		ActorRef: actorRef(c, req.ActorRef),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// Dispose godoc
// @ID           disposeBatch
// @Summary      Dispose a batch
// @Description  Write off whatever is left of a batch and close it as DISPOSED
// @Tags         spoilage
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        id path string true "Batch ID" format(uuid)
// @Param        request body DisposeRequest false "Disposal"
// @Success      200 {object} APIResponse[appinv.SpoilageResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /batches/{id}/dispose [post]
func (h *SpoilageHandler) Dispose(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID format")
		return
	}

	var req DisposeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.ValidationError(c, err)
		return
	}

	result, err := h.spoilage.Dispose(c.Request.Context(), appinv.DisposeRequest{
		BatchID:  batchID,
		Reason:   inventory.SpoilageReason(req.Reason),
		Notes:    req.Notes,
		ActorRef: actorRef(c, req.ActorRef),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Scan godoc
// @ID           scanExpired
// @Summary      Run the expiry scan
// @Description  Move every live batch past its expiry to EXPIRED, release its reservations and open spoilage records. Failures on single batches are listed, not fatal.
// @Tags         spoilage
// @Accept       json
// @Produce      json
// @Param        request body ScanExpiredRequest false "Scan"
// @Success      200 {object} APIResponse[appinv.ScanResult]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /spoilage/scan [post]
func (h *SpoilageHandler) Scan(c *gin.Context) {
	var req ScanExpiredRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.ValidationError(c, err)
		return
	}
	asOf, err := parseOptionalDate("as_of", req.AsOf)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.spoilage.ScanExpired(c.Request.Context(), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Approve godoc
// @ID           approveSpoilage
// @Summary      Approve a spoilage record
// @Description  Move a PENDING spoilage record to APPROVED so the batch can be disposed
// @Tags         spoilage
// @Produce      json
// @Param        id path string true "Spoilage record ID" format(uuid)
// @Success      200 {object} APIResponse[appinv.SpoilageRecordResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /spoilage/{id}/approve [post]
func (h *SpoilageHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid spoilage record ID format")
		return
	}

	record, err := h.spoilage.ApproveSpoilage(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, record)
}

// List godoc
// @ID           listSpoilage
// @Summary      List the spoilage register
// @Description  Retrieve a paginated list of spoilage records with optional filtering
// @Tags         spoilage
// @Produce      json
// @Param        search query string false "Search batch code or notes"
// @Param        material_id query string false "Filter by material ID" format(uuid)
// @Param        batch_id query string false "Filter by batch ID" format(uuid)
// @Param        status query string false "Filter by status" Enums(PENDING, APPROVED, WRITTEN_OFF)
// @Param        reason query string false "Filter by reason" Enums(EXPIRED, DAMAGED, QUALITY_FAILURE, CONTAMINATED, OTHER)
// @Param        fifo_bypassed query boolean false "Only records where newer stock was used first"
// @Param        detected_from query string false "Detected on or after"
// @Param        detected_to query string false "Detected before"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Order by field" default(detected_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc) default(desc)
// @Success      200 {object} APIResponse[[]appinv.SpoilageRecordResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /spoilage [get]
func (h *SpoilageHandler) List(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	page, err := h.spoilage.ListSpoilage(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Export godoc
// @ID           exportSpoilageRegister
// @Summary      Export the spoilage register
// @Description  Render the filtered spoilage register as an XLSX workbook. The archive location, when archiving is enabled, is sent in X-Archive-Location.
// @Tags         spoilage
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        material_id query string false "Filter by material ID" format(uuid)
// @Param        status query string false "Filter by status" Enums(PENDING, APPROVED, WRITTEN_OFF)
// @Param        reason query string false "Filter by reason" Enums(EXPIRED, DAMAGED, QUALITY_FAILURE, CONTAMINATED, OTHER)
// @Param        fifo_bypassed query boolean false "Only records where newer stock was used first"
// @Param        detected_from query string false "Detected on or after"
// @Param        detected_to query string false "Detected before"
// @Success      200 {file} file
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /spoilage/export [get]
func (h *SpoilageHandler) Export(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	export, err := h.spoilage.ExportSpoilageRegister(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Header("X-Export-Rows", strconv.Itoa(export.Rows))
	if export.Location != "" {
		c.Header("X-Archive-Location", export.Location)
	}
	c.Data(http.StatusOK, export.ContentType, export.Content)
}

func (h *SpoilageHandler) bindFilter(c *gin.Context) (appinv.SpoilageListFilter, bool) {
	filter := appinv.SpoilageListFilter{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Reason:   c.Query("reason"),
		OrderBy:  c.Query("order_by"),
		OrderDir: c.Query("order_dir"),
	}
	filter.Page, filter.PageSize = pagination(c)

	var err error
	if filter.MaterialID, err = parseOptionalUUID("material_id", c.Query("material_id")); err != nil {
		h.BadRequest(c, err.Error())
		return filter, false
	}
	if filter.BatchID, err = parseOptionalUUID("batch_id", c.Query("batch_id")); err != nil {
		h.BadRequest(c, err.Error())
		return filter, false
	}
	if filter.FifoBypassed, err = parseOptionalBool("fifo_bypassed", c.Query("fifo_bypassed")); err != nil {
		h.BadRequest(c, err.Error())
		return filter, false
	}
	if filter.DetectedFrom, err = parseOptionalDate("detected_from", c.Query("detected_from")); err != nil {
		h.BadRequest(c, err.Error())
		return filter, false
	}
	if filter.DetectedTo, err = parseOptionalDate("detected_to", c.Query("detected_to")); err != nil {
		h.BadRequest(c, err.Error())
		return filter, false
	}
	return filter, true
}
