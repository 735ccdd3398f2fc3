package telemetry

import (
	"context"
	"errors"

	"github.com/dairyflow/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used for ledger service spans
const TracerName = "dairyflow/ledger"

// Span attribute keys used across ledger operations
const (
	AttrMaterialID  = attribute.Key("ledger.material_id")
	AttrBatchID     = attribute.Key("ledger.batch_id")
	AttrBatchCode   = attribute.Key("ledger.batch_code")
	AttrQuantity    = attribute.Key("ledger.quantity")
	AttrReason      = attribute.Key("ledger.reason")
	AttrContextRef  = attribute.Key("ledger.context_ref")
	AttrOrderRef    = attribute.Key("ledger.order_ref")
	AttrLineCount   = attribute.Key("ledger.plan_lines")
	AttrErrorCode   = attribute.Key("ledger.error_code")
	AttrScanAsOf    = attribute.Key("ledger.scan_as_of")
	AttrReleased    = attribute.Key("ledger.released")
	AttrExpiredSeen = attribute.Key("ledger.expired_batches")
)

// StartServiceSpan starts an internal span named service.method
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span, if any, and ends it. Use with a named error
// return: defer func() { telemetry.EndSpan(span, err) }()
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var de *shared.DomainError
		if errors.As(err, &de) {
			span.SetAttributes(AttrErrorCode.String(de.Code))
		}
	}
	span.End()
}

// GetTraceID returns the trace id of the span in ctx, or ""
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.TraceID().IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
