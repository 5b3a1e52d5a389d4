package shared

import (
	"errors"
	"fmt"
)

// Error codes shared across bounded contexts. The HTTP layer maps each code to
// a status in dto.ErrorCodeHTTPStatus.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeProvider           = "PROVIDER_ERROR"
	CodeConcurrency        = "CONCURRENCY_CONFLICT"
	CodeInvalidState       = "INVALID_STATE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches any DomainError carrying the same code, so callers can test
// errors.Is(err, shared.ErrNotFound) against a more specific message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrency, "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrPreconditionFailed  = NewDomainError(CodePreconditionFailed, "Precondition failed")
	ErrProvider            = NewDomainError(CodeProvider, "Billing provider error")
)

// ValidationError reports malformed or missing input. The message should name
// the offending field.
func ValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// AuthenticationError reports a missing or invalid credential, including a
// failure to obtain a billing-provider session.
func AuthenticationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeUnauthorized, fmt.Sprintf(format, args...))
}

// AuthorizationError reports an actor lacking the role, assignment or
// ownership a mutation requires.
func AuthorizationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeForbidden, fmt.Sprintf(format, args...))
}

// NotFoundError reports a missing record of the given kind.
func NotFoundError(kind string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %v not found", kind, id))
}

// PreconditionFailed reports an entity that exists but is in a state the
// operation cannot accept.
func PreconditionFailed(format string, args ...any) *DomainError {
	return NewDomainError(CodePreconditionFailed, fmt.Sprintf(format, args...))
}

// ProviderError wraps a failure returned by the external billing provider.
// The upstream detail is kept in the message for operators.
func ProviderError(cause error, format string, args ...any) *DomainError {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &DomainError{Code: CodeProvider, Message: msg, cause: cause}
}

// CodeOf returns the DomainError code carried by err, or "" when err is not a
// domain error.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
