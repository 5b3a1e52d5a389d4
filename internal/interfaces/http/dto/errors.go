package dto

import (
	"net/http"

	"github.com/labfix/backend/internal/domain/shared"
)

// Error code constants
// Format: ERR_<CATEGORY>
const (
	// ErrCodeInternal is used for unexpected server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeValidation is used for missing or malformed input
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for requests that cannot be decoded
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodePayloadTooLarge is used when the body exceeds the configured limit
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Authentication and authorization error codes
const (
	// ErrCodeUnauthorized is used when a credential is missing or invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeTokenExpired is used when the bearer token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeForbidden is used when the actor lacks role or ownership
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource and state error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodePreconditionFailed  = "ERR_PRECONDITION_FAILED"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
)

// Upstream error codes
const (
	// ErrCodeProvider is used when the billing provider rejects or fails a call
	ErrCodeProvider = "ERR_PROVIDER"
	// ErrCodeMisconfigured is used when a required secret is absent
	ErrCodeMisconfigured = "ERR_MISCONFIGURED"
	// ErrCodeRateLimited is used when a client exceeds its request budget
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
// Precondition failures answer 400 because the caller must fix the record
// before retrying.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodePayloadTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeTokenExpired:        http.StatusUnauthorized,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodePreconditionFailed:  http.StatusBadRequest,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeProvider:            http.StatusInternalServerError,
	ErrCodeMisconfigured:       http.StatusInternalServerError,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes answer 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes.
var DomainErrorCodeMapping = map[string]string{
	shared.CodeValidation:         ErrCodeValidation,
	shared.CodeUnauthorized:       ErrCodeUnauthorized,
	shared.CodeForbidden:          ErrCodeForbidden,
	shared.CodeNotFound:           ErrCodeNotFound,
	shared.CodePreconditionFailed: ErrCodePreconditionFailed,
	shared.CodeProvider:           ErrCodeProvider,
	shared.CodeConcurrency:        ErrCodeConcurrencyConflict,
	shared.CodeInvalidState:       ErrCodeInvalidState,
}

// NormalizeErrorCode converts a domain error code to its ERR_* form. Codes
// already in API form pass through; anything else becomes ERR_INTERNAL.
func NormalizeErrorCode(code string) string {
	if mapped, ok := DomainErrorCodeMapping[code]; ok {
		return mapped
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeInternal
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one rejected request field.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewErrorResponse creates an error body
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code}
}

// NewErrorResponseWithRequestID creates an error body carrying the request id
func NewErrorResponseWithRequestID(code, message, requestID string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code, RequestID: requestID}
}

// NewValidationErrorResponse creates a validation error body with field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) ErrorResponse {
	return ErrorResponse{
		Error:     message,
		Code:      ErrCodeValidation,
		RequestID: requestID,
		Details:   details,
	}
}
