package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/dairyflow/backend/internal/interfaces/http/dto"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// actorRef returns the actor named in the body, falling back to the
// X-Actor-ID header
func actorRef(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader(logger.ActorHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string, details map[string]any) {
	middleware.SetErrorCode(c, code)
	c.JSON(statusCode, dto.NewErrorResponse(code, message, getRequestID(c), details))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidRequest, message, nil)
}

// ValidationError sends a 400 response listing the rejected fields
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.SetErrorCode(c, dto.ErrCodeInvalidRequest)
	middleware.HandleValidationError(c, err)
}

// HandleError maps err onto the error envelope. Domain errors keep their
// code and details; anything else is a 500 and is logged.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	log := logger.GetGinLogger(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		status := dto.GetHTTPStatus(code)
		if errors.Is(err, inventory.ErrLedgerIntegrity) {
			log.Error("Ledger integrity error", zap.Error(err), zap.Any("details", domainErr.Details))
		}
		h.Error(c, status, code, domainErr.Message, domainErr.Details)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("Request deadline exceeded", zap.Error(err))
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeInternal, "The ledger did not answer in time, retry", nil)
		return
	}

	log.Error("Unhandled error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred", nil)
}
