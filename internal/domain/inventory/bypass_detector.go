package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BypassFinding describes the first consumption that skipped an older batch
type BypassFinding struct {
	NewerBatchID   uuid.UUID       `json:"newer_batch_id"`
	NewerBatchCode string          `json:"newer_batch_code"`
	ConsumedAt     time.Time       `json:"consumed_at"`
	Quantity       decimal.Decimal `json:"quantity"`
	OlderRemaining decimal.Decimal `json:"older_remaining"`
}

// BypassDetector decides from the consumption log alone whether FIFO was
// honored for a batch. A bypass happened when a pick (production or sale)
// drew from a batch of the same material received later than the old batch,
// at a moment when the old batch was already received, not yet expired and
// still had quantity left.
type BypassDetector struct{}

// NewBypassDetector creates a bypass detector
func NewBypassDetector() *BypassDetector {
	return &BypassDetector{}
}

// Detect checks old against the log. ownRecords are the consumption records
// of old itself (used to reconstruct its quantity over time); materialRecords
// are the records of the same material in the window the caller loaded.
// cutoff bounds the window: the expiry date for expiring batches, or the
// current time for batches written off before expiry.
func (d *BypassDetector) Detect(old *Batch, ownRecords, materialRecords []ConsumptionRecord, cutoff time.Time) (bool, *BypassFinding) {
	if old == nil {
		return false, nil
	}
	if old.ExpiryDate != nil && old.ExpiryDate.Before(cutoff) {
		cutoff = *old.ExpiryDate
	}

	own := make([]ConsumptionRecord, 0, len(ownRecords))
	for _, r := range ownRecords {
		if r.BatchID == old.ID {
			own = append(own, r)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].ConsumedAt.Before(own[j].ConsumedAt) })

	candidates := make([]ConsumptionRecord, 0)
	for _, r := range materialRecords {
		if r.BatchID == old.ID || r.MaterialID != old.MaterialID {
			continue
		}
		if !r.Reason.IsPick() {
			continue
		}
		if !r.BatchReceivedDate.After(old.ReceivedDate) {
			continue
		}
		if r.ConsumedAt.Before(old.ReceivedDate) || !r.ConsumedAt.Before(cutoff) {
			continue
		}
		candidates = append(candidates, r)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ConsumedAt.Before(candidates[j].ConsumedAt) })

	for _, c := range candidates {
		remaining := d.remainingAt(old, own, c.ConsumedAt)
		if remaining.IsPositive() {
			return true, &BypassFinding{
				NewerBatchID:   c.BatchID,
				NewerBatchCode: c.BatchCode,
				ConsumedAt:     c.ConsumedAt,
				Quantity:       c.Quantity,
				OlderRemaining: remaining,
			}
		}
	}
	return false, nil
}

// remainingAt reconstructs the batch quantity just before at
func (d *BypassDetector) remainingAt(b *Batch, own []ConsumptionRecord, at time.Time) decimal.Decimal {
	remaining := b.QuantityReceived
	for _, r := range own {
		if !r.ConsumedAt.Before(at) {
			break
		}
		remaining = remaining.Sub(r.Quantity)
	}
	return remaining
}
