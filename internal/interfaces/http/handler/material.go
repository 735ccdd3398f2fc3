package handler

import (
	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaterialHandler handles the material register
type MaterialHandler struct {
	BaseHandler
	batches *appinv.BatchService
}

// NewMaterialHandler creates a new MaterialHandler
func NewMaterialHandler(batches *appinv.BatchService) *MaterialHandler {
	return &MaterialHandler{batches: batches}
}

// RegisterMaterialRequest represents a request to register a material
// @Description Raw ingredient or finished product the ledger holds batches of
type RegisterMaterialRequest struct {
	Code          string `json:"code" binding:"required,min=1,max=64" example:"MILK-RAW"`
	Name          string `json:"name" binding:"required,min=1,max=200" example:"Raw cow milk"`
	Kind          string `json:"kind" binding:"required,oneof=RAW FINISHED" example:"RAW"`
	Unit          string `json:"unit" binding:"required,min=1,max=16" example:"L"`
	ShelfLifeDays int    `json:"shelf_life_days" binding:"gte=0" example:"3"`
}

// Register godoc
// @ID           registerMaterial
// @Summary      Register a material
// @Description  Register a raw ingredient or finished product
// @Tags         materials
// @Accept       json
// @Produce      json
// @Param        request body RegisterMaterialRequest true "Material"
// @Success      201 {object} APIResponse[appinv.MaterialResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /materials [post]
func (h *MaterialHandler) Register(c *gin.Context) {
	var req RegisterMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	material, err := h.batches.RegisterMaterial(c.Request.Context(), appinv.RegisterMaterialRequest{
		Code:          req.Code,
		Name:          req.Name,
		Kind:          inventory.MaterialKind(req.Kind),
		Unit:          req.Unit,
		ShelfLifeDays: req.ShelfLifeDays,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, material)
}

// GetByID godoc
// @ID           getMaterial
// @Summary      Get a material
// @Description  Retrieve a material with its on-hand quantity
// @Tags         materials
// @Produce      json
// @Param        id path string true "Material ID" format(uuid)
// @Success      200 {object} APIResponse[appinv.MaterialResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /materials/{id} [get]
func (h *MaterialHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid material ID format")
		return
	}

	material, err := h.batches.GetMaterial(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, material)
}
