package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newBodyLimitEngine(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(limit))
	r.POST("/api/v1/reservations", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "read: %v", err)
			return
		}
		c.String(http.StatusCreated, "reserved")
	})
	r.GET("/api/v1/batches", func(c *gin.Context) { c.String(http.StatusOK, "list") })
	return r
}

func TestBodyLimit(t *testing.T) {
	reservation := `{"order_ref":"SO-1001","material_id":"0190c6d2-0000-7000-8000-000000000001","quantity":"25"}`

	tests := []struct {
		name          string
		method        string
		path          string
		body          string
		contentLength int64
		limit         int64
		wantStatus    int
		wantBody      string
	}{
		{
			name:       "reservation under the cap",
			method:     http.MethodPost,
			path:       "/api/v1/reservations",
			body:       reservation,
			limit:      1024,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "declared length over the cap is refused",
			method:     http.MethodPost,
			path:       "/api/v1/reservations",
			body:       reservation,
			limit:      16,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   "REQUEST_TOO_LARGE",
		},
		{
			name:          "chunked body is cut off while read",
			method:        http.MethodPost,
			path:          "/api/v1/reservations",
			body:          strings.Repeat("x", 256),
			contentLength: -1,
			limit:         64,
			wantStatus:    http.StatusRequestEntityTooLarge,
			wantBody:      "read:",
		},
		{
			name:       "bodyless list passes",
			method:     http.MethodGet,
			path:       "/api/v1/batches",
			limit:      1,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.contentLength != 0 {
				req.ContentLength = tt.contentLength
			}
			w := httptest.NewRecorder()

			newBodyLimitEngine(tt.limit).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}
