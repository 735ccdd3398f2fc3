package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type ctxMarker struct{}

func TestProfilingWithConfig(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		okRouter(ProfilingWithConfig(ProfilingConfig{})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("labels keep the request context", func(t *testing.T) {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxMarker{}, "kept"))
			c.Next()
		})
		router.Use(Profiling())
		router.GET("/api/v1/batches/:id", func(c *gin.Context) {
			assert.Equal(t, "kept", c.Request.Context().Value(ctxMarker{}))
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batches/42", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skipped paths", func(t *testing.T) {
		router := gin.New()
		router.Use(Profiling())
		router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET("/swagger/index.html", func(c *gin.Context) { c.Status(http.StatusOK) })

		for _, path := range []string{"/health", "/swagger/index.html"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})
}

func TestResourceFromRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/batches/:id/approve":       "batches",
		"/api/v1/reservations/:order_ref":   "reservations",
		"/api/v2/spoilage/export":           "spoilage",
		"/health":                           "health",
		"/api/v1/:id":                       "",
		"":                                  "",
	}
	for route, want := range tests {
		assert.Equal(t, want, resourceFromRoute(route), route)
	}
}

func TestIsVersionSegment(t *testing.T) {
	assert.True(t, isVersionSegment("v1"))
	assert.True(t, isVersionSegment("V12"))
	assert.False(t, isVersionSegment("v"))
	assert.False(t, isVersionSegment("vx"))
	assert.False(t, isVersionSegment("batches"))
}
