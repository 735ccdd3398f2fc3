package inventory

import (
	"errors"
	"testing"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanValidator_Validate(t *testing.T) {
	validator := NewScanValidator(nil)
	older := createTestBatch("RM-OLD", 20, 0, timePtr(day(10)))
	newer := createTestBatch("RM-NEW", 20, 1, timePtr(day(12)))
	ledger := batches(older, newer)

	t.Run("matches the oldest batch", func(t *testing.T) {
		result, err := validator.Validate(testMaterialID, older.BatchCode, older, 0, day(2), ledger)
		require.NoError(t, err)
		assert.True(t, result.Match)
		assert.NoError(t, result.Err())
	})

	t.Run("refuses a newer batch and names the expected one", func(t *testing.T) {
		result, err := validator.Validate(testMaterialID, newer.BatchCode, newer, 0, day(2), ledger)
		require.NoError(t, err)

		assert.False(t, result.Match)
		assert.Equal(t, ScanMismatchNotOldest, result.Reason)
		assert.Equal(t, older.ID, result.ExpectedBatchID)
		assert.Equal(t, "RM-OLD", result.ExpectedCode)
		require.NotNil(t, result.ExpectedExpiryDate)

		verr := result.Err()
		assert.True(t, errors.Is(verr, ErrFifoViolation))
		var de *shared.DomainError
		require.ErrorAs(t, verr, &de)
		assert.Equal(t, "RM-OLD", de.Details["expected_code"])
		assert.Equal(t, "2026-03-01", de.Details["expected_received_date"])
	})

	t.Run("second pick step expects the next batch", func(t *testing.T) {
		result, err := validator.Validate(testMaterialID, newer.BatchCode, newer, 1, day(2), ledger)
		require.NoError(t, err)
		assert.True(t, result.Match)
	})

	t.Run("unknown code", func(t *testing.T) {
		result, err := validator.Validate(testMaterialID, "RM-NOPE", nil, 0, day(2), ledger)
		require.NoError(t, err)
		assert.Equal(t, ScanMismatchUnknownCode, result.Reason)
	})

	t.Run("wrong material", func(t *testing.T) {
		foreign := createTestBatch("RM-FOREIGN", 20, 0, nil)
		foreign.MaterialID = uuid.New()
		result, err := validator.Validate(testMaterialID, foreign.BatchCode, foreign, 0, day(2), ledger)
		require.NoError(t, err)
		assert.Equal(t, ScanMismatchWrongMaterial, result.Reason)
	})

	t.Run("expired scanned batch is not eligible", func(t *testing.T) {
		stale := createTestBatch("RM-STALE", 20, 0, timePtr(day(1)))
		result, err := validator.Validate(testMaterialID, stale.BatchCode, stale, 0, day(2), batches(stale, older, newer))
		require.NoError(t, err)
		assert.Equal(t, ScanMismatchNotEligible, result.Reason)
		assert.Equal(t, older.ID, result.ExpectedBatchID)
	})

	t.Run("step beyond pick list", func(t *testing.T) {
		_, err := validator.Validate(testMaterialID, older.BatchCode, older, 5, day(2), ledger)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})

	t.Run("nothing to pick", func(t *testing.T) {
		_, err := validator.Validate(testMaterialID, older.BatchCode, older, 0, day(20), ledger)
		assert.True(t, errors.Is(err, ErrInsufficientStock))
	})
}
