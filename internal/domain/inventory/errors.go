package inventory

import (
	"errors"

	"github.com/dairyflow/backend/internal/domain/shared"
)

// Error codes surfaced by the batch ledger
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeStaleAllocation     = "STALE_ALLOCATION"
	CodeReservationExpired  = "RESERVATION_EXPIRED"
	CodeFifoViolation       = "FIFO_VIOLATION"
	CodeBatchNotFound       = "BATCH_NOT_FOUND"
	CodeMaterialNotFound    = "MATERIAL_NOT_FOUND"
	CodeReservationNotFound = "RESERVATION_NOT_FOUND"
	CodeSpoilageNotFound    = "SPOILAGE_NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeInvalidState        = "INVALID_STATE"
	CodeLedgerIntegrity     = "LEDGER_INTEGRITY"
)

// Ledger errors. Callers attach context with WithDetail and match with errors.Is.
var (
	ErrInvalidRequest      = shared.NewDomainError(CodeInvalidRequest, "Invalid request")
	ErrInsufficientStock   = shared.NewDomainError(CodeInsufficientStock, "Insufficient eligible stock")
	ErrStaleAllocation     = shared.NewDomainError(CodeStaleAllocation, "Allocation plan no longer matches the ledger, recompute and retry")
	ErrReservationExpired  = shared.NewDomainError(CodeReservationExpired, "Reservation has expired, recompute and retry")
	ErrFifoViolation       = shared.NewDomainError(CodeFifoViolation, "Scanned batch is not the expected FIFO batch")
	ErrBatchNotFound       = shared.NewDomainError(CodeBatchNotFound, "Batch not found")
	ErrMaterialNotFound    = shared.NewDomainError(CodeMaterialNotFound, "Material not found")
	ErrReservationNotFound = shared.NewDomainError(CodeReservationNotFound, "No active reservations found")
	ErrSpoilageNotFound    = shared.NewDomainError(CodeSpoilageNotFound, "Spoilage record not found")
	ErrConcurrencyConflict = shared.NewDomainError(CodeConcurrencyConflict, "Batch was modified by another transaction, retry")
	ErrInvalidTransition   = shared.NewDomainError(CodeInvalidState, "Batch status does not allow this operation")
	ErrLedgerIntegrity     = shared.NewDomainError(CodeLedgerIntegrity, "Ledger integrity violation")
)

// invalidRequest builds an InvalidRequest error with a specific message
func invalidRequest(message string) *shared.DomainError {
	return ErrInvalidRequest.WithMessage(message)
}

// IsRetryable reports whether the caller should recompute and retry
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrStaleAllocation),
		errors.Is(err, ErrReservationExpired),
		errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrBatchNotFound):
		return true
	}
	return false
}
