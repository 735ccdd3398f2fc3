package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/interfaces/http/dto"
	"github.com/dairyflow/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, testEnvelope[any]) {
	t.Helper()
	h := &BaseHandler{}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/test", func(c *gin.Context) {
		h.HandleError(c, err)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, decode[any](t, w)
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient stock", inventory.ErrInsufficientStock.WithDetail("shortage", "5"), http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock},
		{"stale allocation", inventory.ErrStaleAllocation, http.StatusConflict, dto.ErrCodeStaleAllocation},
		{"reservation expired", inventory.ErrReservationExpired, http.StatusConflict, dto.ErrCodeReservationExpired},
		{"fifo violation", inventory.ErrFifoViolation, http.StatusUnprocessableEntity, dto.ErrCodeFifoViolation},
		{"batch not found", inventory.ErrBatchNotFound, http.StatusNotFound, dto.ErrCodeBatchNotFound},
		{"material not found", inventory.ErrMaterialNotFound, http.StatusNotFound, dto.ErrCodeMaterialNotFound},
		{"invalid transition", inventory.ErrInvalidTransition, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"concurrency conflict", inventory.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"ledger integrity", inventory.ErrLedgerIntegrity, http.StatusInternalServerError, dto.ErrCodeLedgerIntegrity},
		{"shared invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidRequest},
		{"shared already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"wrapped domain error", fmt.Errorf("commit: %w", inventory.ErrStaleAllocation), http.StatusConflict, dto.ErrCodeStaleAllocation},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, dto.ErrCodeInternal},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := serveError(t, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, "req-1", env.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleErrorKeepsDetails(t *testing.T) {
	err := inventory.ErrInsufficientStock.
		WithDetail("requested", "100").
		WithDetail("available", "60").
		WithDetail("shortage", "40")

	_, env := serveError(t, err)

	require.NotNil(t, env.Error)
	assert.Equal(t, "40", env.Error.Details["shortage"])
	assert.Equal(t, "60", env.Error.Details["available"])
}

func TestBaseHandler_PlainErrorHidesMessage(t *testing.T) {
	_, env := serveError(t, errors.New("pq: password authentication failed"))

	require.NotNil(t, env.Error)
	assert.NotContains(t, env.Error.Message, "password")
}

func TestBaseHandler_ValidationError(t *testing.T) {
	type body struct {
		Quantity string `json:"quantity" binding:"required"`
	}
	h := &BaseHandler{}
	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			h.ValidationError(c, err)
			return
		}
		h.Success(c, b)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode[any](t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ErrCodeInvalidRequest, env.Error.Code)
	require.Len(t, env.Error.Fields, 1)
	assert.Equal(t, "quantity", env.Error.Fields[0].Field)
}

func TestActorRef(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("X-Actor-ID", "header-actor")

	assert.Equal(t, "body-actor", actorRef(c, "body-actor"))
	assert.Equal(t, "header-actor", actorRef(c, ""))
}
