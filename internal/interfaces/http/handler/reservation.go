package handler

import (
	"errors"
	"io"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationHandler handles order reservations
type ReservationHandler struct {
	BaseHandler
	reservations *appinv.ReservationService
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(reservations *appinv.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// ReserveForOrderRequest represents a request to reserve stock for an order
// @Description Reserve quantity of a material for an order. Pass the lines of an earlier preview in plan to reserve exactly those batches; a changed ledger answers STALE_ALLOCATION.
type ReserveForOrderRequest struct {
	OrderRef     string            `json:"order_ref" binding:"required,min=1,max=100" example:"SO-2024-0042"`
	OrderLineRef string            `json:"order_line_ref" binding:"max=100" example:"SO-2024-0042/1"`
	MaterialID   string            `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a11"`
	Quantity     decimal.Decimal   `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"48"`
	Plan         []PlanLineRequest `json:"plan" binding:"omitempty,dive"`
	TTLSeconds   int               `json:"ttl_seconds" binding:"gte=0,lte=604800" example:"1800"`
}

// FulfillOrderRequest represents a request to consume an order's reservations
// @Description reason is SALE (default) or PRODUCTION; context_ref defaults to the order reference
type FulfillOrderRequest struct {
	Reason     string `json:"reason" binding:"omitempty,oneof=SALE PRODUCTION" example:"SALE"`
	ContextRef string `json:"context_ref" binding:"max=100" example:"DN-2024-0042"`
	ActorRef   string `json:"actor_ref" binding:"max=100" example:"dispatch-3"`
}

// Reserve godoc
// @ID           reserveForOrder
// @Summary      Reserve stock for an order
// @Description  Reserve batches oldest first for an order, or the exact batches of a previewed plan
// @Tags         reservations
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        request body ReserveForOrderRequest true "Reservation"
// @Success      201 {object} APIResponse[appinv.ReservationResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /reservations [post]
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req ReserveForOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}
	plan, err := toPlanInput(req.Plan)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.reservations.ReserveForOrder(c.Request.Context(), appinv.ReserveForOrderRequest{
		OrderRef:     req.OrderRef,
		OrderLineRef: req.OrderLineRef,
		MaterialID:   materialID,
		Quantity:     req.Quantity,
		Plan:         plan,
		TTL:          time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// Release godoc
// @ID           releaseReservations
// @Summary      Release an order's reservations
// @Description  Return the stock of every active reservation of an order. Releasing twice is a no-op.
// @Tags         reservations
// @Produce      json
// @Param        order_ref path string true "Order reference"
// @Success      200 {object} APIResponse[appinv.ReleaseResult]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /reservations/{order_ref}/release [post]
func (h *ReservationHandler) Release(c *gin.Context) {
	result, err := h.reservations.ReleaseReservations(c.Request.Context(), c.Param("order_ref"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Fulfill godoc
// @ID           fulfillOrder
// @Summary      Fulfill an order from its reservations
// @Description  Turn the active reservations of an order into consumption records
// @Tags         reservations
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        order_ref path string true "Order reference"
// @Param        request body FulfillOrderRequest false "Fulfillment"
// @Success      200 {object} APIResponse[appinv.ConsumptionResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /reservations/{order_ref}/fulfill [post]
func (h *ReservationHandler) Fulfill(c *gin.Context) {
	var req FulfillOrderRequest
	// The body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.ValidationError(c, err)
		return
	}

	result, err := h.reservations.FulfillOrder(c.Request.Context(), appinv.FulfillOrderRequest{
		OrderRef:   c.Param("order_ref"),
		Reason:     inventory.ConsumptionReason(req.Reason),
		ContextRef: req.ContextRef,
		ActorRef:   actorRef(c, req.ActorRef),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Sweep godoc
// @ID           sweepExpiredReservations
// @Summary      Sweep expired reservations
// @Description  Expire every active reservation past its deadline and return its stock. The scheduler runs this periodically.
// @Tags         reservations
// @Produce      json
// @Success      200 {object} APIResponse[appinv.ReleaseResult]
// @Failure      500 {object} ErrorResponse
// @Router       /reservations/sweep [post]
func (h *ReservationHandler) Sweep(c *gin.Context) {
	result, err := h.reservations.SweepExpired(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
