package shared

import "errors"

// ErrorKind classifies a domain error for the transport boundary.
// The REST layer (out of process) maps NotFound/Validation/Conflict onto 404/400/409.
type ErrorKind string

const (
	ErrorKindNotFound   ErrorKind = "NOT_FOUND"
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindConflict   ErrorKind = "CONFLICT"
	ErrorKindInternal   ErrorKind = "INTERNAL"
)

// DomainError represents a domain-level error with a machine-readable code
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error of the given kind
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// NewNotFoundError creates a not-found domain error
func NewNotFoundError(code, message string) *DomainError {
	return NewDomainError(ErrorKindNotFound, code, message)
}

// NewValidationError creates a validation domain error
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(ErrorKindValidation, code, message)
}

// NewConflictError creates a conflict domain error
func NewConflictError(code, message string) *DomainError {
	return NewDomainError(ErrorKindConflict, code, message)
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewConflictError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState        = NewConflictError("INVALID_STATE", "Operation not allowed in current state")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
)

// kindOf extracts the error kind from err, or Internal when err is not a DomainError
func kindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindInternal
}

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool {
	return kindOf(err) == ErrorKindNotFound
}

// IsValidation reports whether err is a validation domain error
func IsValidation(err error) bool {
	return kindOf(err) == ErrorKindValidation
}

// IsConflict reports whether err is a conflict domain error
func IsConflict(err error) bool {
	return kindOf(err) == ErrorKindConflict
}

// ErrorCode returns the machine-readable code of err, or empty when err
// is not a DomainError
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
