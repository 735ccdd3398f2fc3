package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDisabledProviders(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	tp, err := NewTracerProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	tp.EnableSpanProfiles()
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, Config{}, 0, logger)
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.False(t, lp.ZapCore("svc", zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, lp.Shutdown(ctx))

	p, err := NewProfiler(ProfilerConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "ledger"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://pyroscope:4040"}, zap.NewNop())
	assert.ErrorContains(t, err, "application name")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestStartServiceSpan(t *testing.T) {
	recorder := useSpanRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "consumption", "issue_for_production", AttrContextRef.String("PR-1"))
	assert.NotEmpty(t, GetTraceID(ctx))
	EndSpan(span, nil)

	_, span = StartServiceSpan(context.Background(), "consumption", "dispatch_for_sale")
	EndSpan(span, inventory.ErrInsufficientStock.WithDetail("shortfall", "5"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "consumption.issue_for_production", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), AttrContextRef.String("PR-1"))
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Attributes(), AttrErrorCode.String(inventory.ErrInsufficientStock.Code))
}

func TestEndSpan_PlainError(t *testing.T) {
	recorder := useSpanRecorder(t)

	_, span := StartServiceSpan(context.Background(), "scan", "run")
	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "boom", ended[0].Status().Description)
	for _, kv := range ended[0].Attributes() {
		assert.NotEqual(t, AttrErrorCode, kv.Key)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) float64 {
	t.Helper()
	matches := func(set attribute.Set) bool {
		if attr.Key == "" {
			return true
		}
		v, ok := set.Value(attr.Key)
		return ok && v.Emit() == attr.Value.Emit()
	}
	total := 0.0
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if matches(dp.Attributes) {
						total += float64(dp.Value)
					}
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					if matches(dp.Attributes) {
						total += dp.Value
					}
				}
			}
		}
	}
	return total
}

func TestLedgerMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewLedgerMetrics(provider.Meter("test"))
	require.NoError(t, err)
	assert.Len(t, m.EventTypes(), 9)

	batch := &inventory.Batch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		MaterialID:        uuid.New(),
		MaterialKind:      inventory.MaterialKindRaw,
		BatchCode:         "MILK-A",
		SourceType:        inventory.BatchSourcePurchaseReceipt,
		QuantityReceived:  decimal.NewFromInt(100),
		CurrentQuantity:   decimal.NewFromInt(100),
		UnitCost:          decimal.NewFromInt(2),
	}
	events := []shared.DomainEvent{
		inventory.NewBatchReceivedEvent(batch),
		inventory.NewBatchReceivedEvent(batch),
		&inventory.StockConsumedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeStockConsumed, inventory.AggregateTypeBatch, batch.MaterialID),
			Reason:          inventory.ConsumptionReasonSale,
			Quantity:        decimal.RequireFromString("12.5"),
			TotalCost:       decimal.NewFromInt(25),
		},
		inventory.NewBatchExpiredEvent(batch, decimal.Zero),
		&inventory.SpoilageRecordedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeSpoilageRecorded, inventory.AggregateTypeBatch, batch.ID),
			Reason:          inventory.SpoilageReasonExpired,
			TotalLoss:       decimal.NewFromInt(200),
			FifoBypassed:    true,
		},
	}
	for _, e := range events {
		require.NoError(t, m.Handle(ctx, e))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, 2.0, sumByAttr(t, rm, "dairy_ledger_batches_received_total", attribute.String("material_kind", "RAW")))
	assert.Equal(t, 200.0, sumByAttr(t, rm, "dairy_ledger_quantity_received", attribute.KeyValue{}))
	assert.Equal(t, 12.5, sumByAttr(t, rm, "dairy_ledger_quantity_consumed", attribute.String("reason", "SALE")))
	assert.Equal(t, 25.0, sumByAttr(t, rm, "dairy_ledger_consumption_cost", attribute.KeyValue{}))
	assert.Equal(t, 1.0, sumByAttr(t, rm, "dairy_ledger_batches_expired_total", attribute.KeyValue{}))
	assert.Equal(t, 200.0, sumByAttr(t, rm, "dairy_ledger_spoilage_loss", attribute.Bool("fifo_bypassed", true)))
	assert.Equal(t, 0.0, sumByAttr(t, rm, "dairy_ledger_fifo_violations_total", attribute.KeyValue{}))
}
