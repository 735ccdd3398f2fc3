package inventory

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOAllocator_Allocate(t *testing.T) {
	allocator := NewFIFOAllocator()

	t.Run("spills into the next batch oldest first", func(t *testing.T) {
		a := createTestBatch("RM-A", 100, 0, nil)
		b := createTestBatch("RM-B", 50, 1, nil)

		plan, err := allocator.Allocate(testMaterialID, dec(120), day(5), batches(b, a))
		require.NoError(t, err)

		require.Len(t, plan.Lines, 2)
		assert.Equal(t, a.ID, plan.Lines[0].BatchID)
		assert.True(t, plan.Lines[0].Quantity.Equal(dec(100)))
		assert.Equal(t, b.ID, plan.Lines[1].BatchID)
		assert.True(t, plan.Lines[1].Quantity.Equal(dec(20)))
		assert.True(t, plan.FullySatisfied)
		assert.True(t, plan.Shortage.IsZero())
		assert.True(t, plan.TotalCost.Equal(dec(300)))
	})

	t.Run("returns partial plan with shortage", func(t *testing.T) {
		a := createTestBatch("RM-A", 30, 0, nil)

		plan, err := allocator.Allocate(testMaterialID, dec(50), day(1), batches(a))
		require.NoError(t, err)

		assert.False(t, plan.FullySatisfied)
		assert.True(t, plan.AllocatedQuantity.Equal(dec(30)))
		assert.True(t, plan.Shortage.Equal(dec(20)))

		err = plan.ShortageError()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInsufficientStock))
	})

	t.Run("excludes batch expiring at the allocation date", func(t *testing.T) {
		expired := createTestBatch("RM-OLD", 40, 0, timePtr(day(3)))
		fresh := createTestBatch("RM-NEW", 40, 1, timePtr(day(10)))

		plan, err := allocator.Allocate(testMaterialID, dec(10), day(3), batches(expired, fresh))
		require.NoError(t, err)

		require.Len(t, plan.Lines, 1)
		assert.Equal(t, fresh.ID, plan.Lines[0].BatchID)
	})

	t.Run("skips reserved quantity", func(t *testing.T) {
		a := createTestBatch("RM-A", 50, 0, nil)
		require.NoError(t, a.Reserve(dec(40), day(1)))

		plan, err := allocator.Allocate(testMaterialID, dec(20), day(1), batches(a))
		require.NoError(t, err)

		assert.True(t, plan.AllocatedQuantity.Equal(dec(10)))
		assert.True(t, plan.Shortage.Equal(dec(10)))
	})

	t.Run("ignores other materials and non-allocatable batches", func(t *testing.T) {
		a := createTestBatch("RM-A", 50, 0, nil)
		other := createTestBatch("RM-X", 50, 0, nil)
		other.MaterialID = uuid.New()
		rejected := createTestBatch("RM-R", 50, 0, nil)
		_, err := rejected.Reject()
		require.NoError(t, err)

		plan, err := allocator.Allocate(testMaterialID, dec(100), day(1), batches(other, rejected, a))
		require.NoError(t, err)

		require.Len(t, plan.Lines, 1)
		assert.Equal(t, a.ID, plan.Lines[0].BatchID)
	})

	t.Run("breaks received date ties by batch id", func(t *testing.T) {
		first := createTestBatch("RM-1", 10, 0, nil)
		second := createTestBatch("RM-2", 10, 0, nil)
		first.ID = uuid.MustParse("00000000-0000-7000-8000-000000000001")
		second.ID = uuid.MustParse("00000000-0000-7000-8000-000000000002")

		plan, err := allocator.Allocate(testMaterialID, dec(15), day(1), batches(second, first))
		require.NoError(t, err)

		require.Len(t, plan.Lines, 2)
		assert.Equal(t, first.ID, plan.Lines[0].BatchID)
		assert.Equal(t, second.ID, plan.Lines[1].BatchID)
	})

	t.Run("does not mutate input batches", func(t *testing.T) {
		a := createTestBatch("RM-A", 100, 0, nil)
		input := batches(a)

		_, err := allocator.Allocate(testMaterialID, dec(60), day(1), input)
		require.NoError(t, err)

		assert.True(t, input[0].CurrentQuantity.Equal(dec(100)))
		assert.True(t, input[0].ReservedQuantity.IsZero())
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		_, err := allocator.Allocate(testMaterialID, dec(0), day(1), nil)
		assert.True(t, errors.Is(err, ErrInvalidRequest))

		_, err = allocator.Allocate(uuid.Nil, dec(1), day(1), nil)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})
}

func TestFIFOAllocator_PlanIsOrderedAndConserving(t *testing.T) {
	allocator := NewFIFOAllocator()
	input := batches(
		createTestBatch("RM-C", 7, 3, nil),
		createTestBatch("RM-A", 5, 1, nil),
		createTestBatch("RM-D", 11, 4, timePtr(day(30))),
		createTestBatch("RM-B", 3, 2, nil),
	)

	for requested := int64(1); requested <= 30; requested++ {
		plan, err := allocator.Allocate(testMaterialID, dec(requested), day(5), input)
		require.NoError(t, err)

		sum := dec(0)
		for i, line := range plan.Lines {
			assert.True(t, line.Quantity.IsPositive())
			if i > 0 {
				assert.False(t, line.ReceivedDate.Before(plan.Lines[i-1].ReceivedDate))
			}
			sum = sum.Add(line.Quantity)
		}
		assert.True(t, sum.Equal(plan.AllocatedQuantity))
		assert.True(t, plan.AllocatedQuantity.Add(plan.Shortage).Equal(dec(requested)))
	}
}
