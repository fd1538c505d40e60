package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message.
// Message is safe to show to end users; Err carries the internal cause.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetails attaches an explanatory payload returned alongside the message.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	e.Details = details
	return e
}

// Error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeConflict     = "CONFLICT"
)

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeNotFound, Message: msg}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeValidation, Message: msg}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeUnauthorized, Message: msg}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeForbidden, Message: msg}
}

// NewConflictError creates a new conflict (business rule) error
func NewConflictError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeConflict, Message: msg}
}

// NewInternalError wraps an infrastructure failure
func NewInternalError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "처리 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요.",
		Err:     err,
	}
}

// CodeOf extracts the error code from anything wrapping a DomainError.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return err != nil && CodeOf(err) == ErrCodeNotFound }

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return err != nil && CodeOf(err) == ErrCodeValidation }

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool { return err != nil && CodeOf(err) == ErrCodeConflict }

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool { return err != nil && CodeOf(err) == ErrCodeForbidden }

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool { return err != nil && CodeOf(err) == ErrCodeUnauthorized }

// Wrap returns the DomainError inside err, or wraps err as an internal error
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return NewInternalError(err)
}
