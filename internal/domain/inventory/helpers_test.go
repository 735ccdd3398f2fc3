package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	testMaterialID = uuid.MustParse("0190f7a0-0000-7000-8000-000000000001")
	testDay        = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func day(n int) time.Time {
	return testDay.AddDate(0, 0, n)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// createTestBatch creates an approved batch of testMaterialID received on
// day(receivedDay) with an optional expiry
func createTestBatch(code string, quantity int64, receivedDay int, expiry *time.Time) *Batch {
	b, err := NewBatch(NewBatchParams{
		MaterialID:   testMaterialID,
		MaterialKind: MaterialKindRaw,
		BatchCode:    code,
		SourceType:   BatchSourceRawReceipt,
		SourceRef:    "SUP-1",
		Quantity:     dec(quantity),
		UnitCost:     decimal.NewFromFloat(2.5),
		ReceivedDate: day(receivedDay),
		ExpiryDate:   expiry,
	})
	if err != nil {
		panic(err)
	}
	if err := b.Approve(); err != nil {
		panic(err)
	}
	b.ClearDomainEvents()
	return b
}

func batches(bs ...*Batch) []Batch {
	out := make([]Batch, len(bs))
	for i, b := range bs {
		out[i] = *b
	}
	return out
}

func pickRecord(b *Batch, qty int64, at time.Time) ConsumptionRecord {
	return *NewConsumptionRecord(b, dec(qty), ConsumptionContext{
		Reason:     ConsumptionReasonProduction,
		ContextRef: "RUN-1",
	}, nil, at)
}
