package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether the database answers
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
	now     func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second, now: time.Now}
}

// Check godoc
// @ID           healthCheck
// @Summary      Health check
// @Description  Liveness with a database ping
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthData
// @Failure      503 {object} HealthData
// @Router       /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	now := h.now().UTC().Format(time.RFC3339)
	if err := h.db.PingContext(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, HealthData{Status: "unhealthy", Database: "error", Time: now})
		return
	}
	c.JSON(http.StatusOK, HealthData{Status: "healthy", Database: "ok", Time: now})
}
