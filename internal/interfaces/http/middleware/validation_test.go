package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dairyflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanBody struct {
	MaterialID string          `json:"material_id" binding:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UnitCost   decimal.Decimal `json:"unit_cost" binding:"decimal_gte0"`
	BatchCode  string          `json:"batch_code" binding:"omitempty,batch_code"`
}

func validationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var req scanBody
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator_LedgerTags(t *testing.T) {
	router := validationRouter()
	const material = `"material_id":"0190f7a4-9d1c-7b3e-8a44-5c2d1e0f9a10"`

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{"valid", `{` + material + `,"quantity":"12.5","unit_cost":0,"batch_code":"rm-farm7-20240105-0001"}`, http.StatusOK, ""},
		{"numeric quantity", `{` + material + `,"quantity":3}`, http.StatusOK, ""},
		{"zero quantity", `{` + material + `,"quantity":"0"}`, http.StatusBadRequest, "quantity"},
		{"negative cost", `{` + material + `,"quantity":"1","unit_cost":"-0.5"}`, http.StatusBadRequest, "unit_cost"},
		{"blank batch code", `{` + material + `,"quantity":"1","batch_code":"   "}`, http.StatusBadRequest, "batch_code"},
		{"long batch code", `{` + material + `,"quantity":"1","batch_code":"` + strings.Repeat("A", 65) + `"}`, http.StatusBadRequest, "batch_code"},
		{"bad uuid", `{"material_id":"nope","quantity":"1"}`, http.StatusBadRequest, "material_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantField == "" {
				return
			}

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeInvalidRequest, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Fields)
			assert.Equal(t, tt.wantField, resp.Error.Fields[0].Field)
		})
	}
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	router := validationRouter()

	w := postJSON(router, `{"quantity":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrCodeInvalidRequest, resp.Error.Code)
	assert.Empty(t, resp.Error.Fields)
	assert.NotEqual(t, "Request validation failed", resp.Error.Message)
}
