package dto

import "net/http"

// Transport-level error codes. Domain codes come from the domain layer
// unchanged; these cover failures that never reach a service.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// errorCodeHTTPStatus maps error codes to HTTP status codes. Unlisted
// codes fall back to 500 so an unmapped failure is never mistaken for a
// client error.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInvalidRequest: http.StatusBadRequest,
	"INVALID_INPUT":       http.StatusBadRequest,
	"VALIDATION_ERROR":    http.StatusBadRequest,

	"NOT_FOUND": http.StatusNotFound,

	"ALREADY_EXISTS":       http.StatusConflict,
	"ALREADY_POSTED":       http.StatusConflict,
	"ALREADY_PAID":         http.StatusConflict,
	"IMMUTABLE_RECORD":     http.StatusConflict,
	"CONCURRENCY_CONFLICT": http.StatusConflict,

	"INVALID_STATE":        http.StatusUnprocessableEntity,
	"UNBALANCED_ENTRY":     http.StatusUnprocessableEntity,
	"PLAN_AMOUNT_MISMATCH": http.StatusUnprocessableEntity,

	ErrCodeInternal: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for an error code
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
