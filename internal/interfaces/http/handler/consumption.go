package handler

import (
	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionHandler handles direct consumption without a prior reservation
type ConsumptionHandler struct {
	BaseHandler
	consumption *appinv.ConsumptionService
}

// NewConsumptionHandler creates a new ConsumptionHandler
func NewConsumptionHandler(consumption *appinv.ConsumptionService) *ConsumptionHandler {
	return &ConsumptionHandler{consumption: consumption}
}

// IssueForProductionRequest represents raw material issued to a production run
// @Description Without plan the ledger picks batches oldest first at commit time
type IssueForProductionRequest struct {
	MaterialID    string            `json:"material_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a10"`
	Quantity      decimal.Decimal   `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"600"`
	ProductionRef string            `json:"production_ref" binding:"required,min=1,max=100" example:"RUN-2024-0105-A"`
	ActorRef      string            `json:"actor_ref" binding:"max=100" example:"line-2"`
	Plan          []PlanLineRequest `json:"plan" binding:"omitempty,dive"`
	Metadata      map[string]string `json:"metadata"`
}

// DispatchForSaleRequest represents finished goods dispatched for a sale
// @Description The response lists the batch codes to print on the dispatch document
type DispatchForSaleRequest struct {
	ProductID string            `json:"product_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a11"`
	Quantity  decimal.Decimal   `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"48"`
	SaleRef   string            `json:"sale_ref" binding:"required,min=1,max=100" example:"INV-2024-0042"`
	ActorRef  string            `json:"actor_ref" binding:"max=100" example:"dispatch-3"`
	Plan      []PlanLineRequest `json:"plan" binding:"omitempty,dive"`
	Metadata  map[string]string `json:"metadata"`
}

// IssueForProduction godoc
// @ID           issueForProduction
// @Summary      Issue raw material to production
// @Description  Consume a raw material for a production run, oldest batch first
// @Tags         consumptions
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        request body IssueForProductionRequest true "Issue"
// @Success      201 {object} APIResponse[appinv.ConsumptionResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /consumptions/production [post]
func (h *ConsumptionHandler) IssueForProduction(c *gin.Context) {
	var req IssueForProductionRequest
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

	result, err := h.consumption.IssueForProduction(c.Request.Context(), appinv.IssueForProductionRequest{
		MaterialID:    materialID,
		Quantity:      req.Quantity,
		ProductionRef: req.ProductionRef,
		ActorRef:      actorRef(c, req.ActorRef),
		Plan:          plan,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// DispatchForSale godoc
// @ID           dispatchForSale
// @Summary      Dispatch finished goods for a sale
// @Description  Consume a finished product for a sale, oldest batch first
// @Tags         consumptions
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Replay protection key"
// @Param        request body DispatchForSaleRequest true "Dispatch"
// @Success      201 {object} APIResponse[appinv.ConsumptionResult]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /consumptions/sale [post]
func (h *ConsumptionHandler) DispatchForSale(c *gin.Context) {
	var req DispatchForSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}
	plan, err := toPlanInput(req.Plan)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.consumption.DispatchForSale(c.Request.Context(), appinv.DispatchForSaleRequest{
		ProductID: productID,
		Quantity:  req.Quantity,
		SaleRef:   req.SaleRef,
		ActorRef:  actorRef(c, req.ActorRef),
		Plan:      plan,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}
