// Package middleware provides the gin middleware of the ledger API.
package middleware

import (
	"net/http"

	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxActorLength caps caller-supplied actor ids copied into spans
const maxActorLength = 64

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Options are passed through to otelgin (tests inject a tracer provider)
	Options []otelgin.Option
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "dairy-ledger",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin. Spans are named after the route pattern.
// Register SpanAttributes right after it to tag spans with request_id and
// actor_ref.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName, cfg.Options...)
}

// SpanAttributes tags the server span created by Tracing
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := c.GetString("request_id"); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if actor := c.GetHeader(logger.ActorHeader); actor != "" {
		if len(actor) > maxActorLength {
			actor = actor[:maxActorLength]
		}
		span.SetAttributes(attribute.String("actor_ref", actor))
	}
}

// SpanErrorMarker marks the server span as failed for 5xx responses and
// records the status of 4xx ones. Register it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if code, ok := c.Get(errorCodeKey); ok {
			if s, ok := code.(string); ok {
				span.SetAttributes(attribute.String("ledger.error_code", s))
			}
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// errorCodeKey is where handlers leave the error code of a failed request
const errorCodeKey = "error_code"

// SetErrorCode records the API error code of the current request for spans
// and metrics
func SetErrorCode(c *gin.Context, code string) {
	c.Set(errorCodeKey, code)
}
