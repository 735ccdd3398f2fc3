package dto

import "net/http"

// Error codes returned in error.code. Ledger codes are the domain codes
// verbatim; the rest belong to the transport.
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
	ErrCodeStaleAllocation     = "STALE_ALLOCATION"
	ErrCodeReservationExpired  = "RESERVATION_EXPIRED"
	ErrCodeFifoViolation       = "FIFO_VIOLATION"
	ErrCodeBatchNotFound       = "BATCH_NOT_FOUND"
	ErrCodeMaterialNotFound    = "MATERIAL_NOT_FOUND"
	ErrCodeReservationNotFound = "RESERVATION_NOT_FOUND"
	ErrCodeSpoilageNotFound    = "SPOILAGE_NOT_FOUND"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeLedgerIntegrity     = "LEDGER_INTEGRITY"

	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeRequestTooLarge     = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInvalidRequest:      http.StatusBadRequest,
	ErrCodeInsufficientStock:   http.StatusUnprocessableEntity,
	ErrCodeStaleAllocation:     http.StatusConflict,
	ErrCodeReservationExpired:  http.StatusConflict,
	ErrCodeFifoViolation:       http.StatusUnprocessableEntity,
	ErrCodeBatchNotFound:       http.StatusNotFound,
	ErrCodeMaterialNotFound:    http.StatusNotFound,
	ErrCodeReservationNotFound: http.StatusNotFound,
	ErrCodeSpoilageNotFound:    http.StatusNotFound,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeLedgerIntegrity:     http.StatusInternalServerError,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeIdempotencyConflict: http.StatusConflict,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// sharedCodeMapping folds the generic shared error codes into the API codes
var sharedCodeMapping = map[string]string{
	"INVALID_INPUT":    ErrCodeInvalidRequest,
	"VALIDATION_ERROR": ErrCodeInvalidRequest,
	"BAD_REQUEST":      ErrCodeInvalidRequest,
}

// NormalizeErrorCode converts a domain error code to the code sent to clients
func NormalizeErrorCode(code string) string {
	if mapped, ok := sharedCodeMapping[code]; ok {
		return mapped
	}
	return code
}
