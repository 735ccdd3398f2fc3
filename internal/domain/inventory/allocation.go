package inventory

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationLine is one (batch, quantity) pair of a plan
type AllocationLine struct {
	BatchID      uuid.UUID       `json:"batch_id"`
	BatchCode    string          `json:"batch_code"`
	ReceivedDate time.Time       `json:"received_date"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LineCost     decimal.Decimal `json:"line_cost"`
}

// AllocationPlan is the transient result of a FIFO allocation. Nothing is
// persisted until the plan is reserved or committed.
type AllocationPlan struct {
	MaterialID        uuid.UUID        `json:"material_id"`
	RequestedQuantity decimal.Decimal  `json:"requested_quantity"`
	AllocatedQuantity decimal.Decimal  `json:"allocated_quantity"`
	Shortage          decimal.Decimal  `json:"shortage"`
	FullySatisfied    bool             `json:"fully_satisfied"`
	TotalCost         decimal.Decimal  `json:"total_cost"`
	AsOf              time.Time        `json:"as_of"`
	Lines             []AllocationLine `json:"lines"`
}

// BatchIDs returns the batch IDs referenced by the plan, in plan order
func (p *AllocationPlan) BatchIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Lines))
	for i, l := range p.Lines {
		ids[i] = l.BatchID
	}
	return ids
}

// ShortageError returns InsufficientStock carrying the shortfall, or nil when
// the plan covers the request
func (p *AllocationPlan) ShortageError() error {
	if p.FullySatisfied {
		return nil
	}
	return ErrInsufficientStock.
		WithMessage("Only "+p.AllocatedQuantity.String()+" of "+p.RequestedQuantity.String()+" is available").
		WithDetail("material_id", p.MaterialID.String()).
		WithDetail("requested", p.RequestedQuantity.String()).
		WithDetail("available", p.AllocatedQuantity.String()).
		WithDetail("shortage", p.Shortage.String())
}

// FIFOAllocator walks batches oldest first. It is pure: it never mutates the
// batches it is given.
type FIFOAllocator struct{}

// NewFIFOAllocator creates a FIFO allocator
func NewFIFOAllocator() *FIFOAllocator {
	return &FIFOAllocator{}
}

// Allocate builds a plan for quantityNeeded of materialID from batches as of asOf.
// Batches of other materials, in non-allocatable status, expired at asOf or
// fully reserved are skipped.
func (a *FIFOAllocator) Allocate(materialID uuid.UUID, quantityNeeded decimal.Decimal, asOf time.Time, batches []Batch) (*AllocationPlan, error) {
	if materialID == uuid.Nil {
		return nil, invalidRequest("Material ID cannot be empty")
	}
	if !quantityNeeded.IsPositive() {
		return nil, invalidRequest("Requested quantity must be positive").
			WithDetail("requested", quantityNeeded.String())
	}

	eligible := a.EligibleBatches(materialID, asOf, batches)

	plan := &AllocationPlan{
		MaterialID:        materialID,
		RequestedQuantity: quantityNeeded,
		AllocatedQuantity: decimal.Zero,
		TotalCost:         decimal.Zero,
		AsOf:              asOf,
		Lines:             make([]AllocationLine, 0, len(eligible)),
	}

	remaining := quantityNeeded
	for i := range eligible {
		if !remaining.IsPositive() {
			break
		}
		b := &eligible[i]
		take := decimal.Min(remaining, b.AvailableQuantity())
		plan.Lines = append(plan.Lines, AllocationLine{
			BatchID:      b.ID,
			BatchCode:    b.BatchCode,
			ReceivedDate: b.ReceivedDate,
			ExpiryDate:   b.ExpiryDate,
			Quantity:     take,
			UnitCost:     b.UnitCost,
			LineCost:     take.Mul(b.UnitCost),
		})
		plan.AllocatedQuantity = plan.AllocatedQuantity.Add(take)
		plan.TotalCost = plan.TotalCost.Add(take.Mul(b.UnitCost))
		remaining = remaining.Sub(take)
	}

	plan.Shortage = quantityNeeded.Sub(plan.AllocatedQuantity)
	plan.FullySatisfied = plan.Shortage.IsZero()
	return plan, nil
}

// EligibleBatches filters and orders batches the way Allocate consumes them
func (a *FIFOAllocator) EligibleBatches(materialID uuid.UUID, asOf time.Time, batches []Batch) []Batch {
	eligible := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.MaterialID != materialID {
			continue
		}
		if !b.IsEligibleAt(asOf) {
			continue
		}
		eligible = append(eligible, b)
	}
	SortFIFO(eligible)
	return eligible
}

// SortFIFO orders batches by received date, then batch ID
func SortFIFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return FIFOLess(&batches[i], &batches[j])
	})
}

// FIFOLess reports whether a must be drawn before b
func FIFOLess(a, b *Batch) bool {
	if !a.ReceivedDate.Equal(b.ReceivedDate) {
		return a.ReceivedDate.Before(b.ReceivedDate)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
