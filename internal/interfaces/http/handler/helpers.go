package handler

import (
	"fmt"
	"strconv"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// parseDateTime parses a datetime string in various formats
func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseOptionalDate parses s when present; an empty string yields nil
func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDateTime(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC3339 or YYYY-MM-DD", field)
	}
	return &t, nil
}

// parseOptionalUUID parses s when present; an empty string yields nil
func parseOptionalUUID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format", field)
	}
	return &id, nil
}

// parseOptionalBool parses s when present; an empty string yields nil
func parseOptionalBool(field, s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected true or false", field)
	}
	return &b, nil
}

// PlanLineRequest is one line of a previously previewed FIFO plan
// @Description Batch and quantity taken from an allocation preview
type PlanLineRequest struct {
	BatchID  string          `json:"batch_id" binding:"required,uuid" example:"0190c6a2-7a4e-7c4b-9b1f-3f7c2f1d9a10"`
	Quantity decimal.Decimal `json:"quantity" binding:"decimal_gt0" swaggertype:"string" example:"120.5"`
}

func toPlanInput(lines []PlanLineRequest) ([]appinv.PlanLineInput, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	out := make([]appinv.PlanLineInput, len(lines))
	for i, l := range lines {
		id, err := uuid.Parse(l.BatchID)
		if err != nil {
			return nil, fmt.Errorf("invalid plan[%d].batch_id format", i)
		}
		out[i] = appinv.PlanLineInput{BatchID: id, Quantity: l.Quantity}
	}
	return out, nil
}

// pagination reads page and page_size with the usual defaults
func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page"))
	pageSize, _ = strconv.Atoi(c.Query("page_size"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
