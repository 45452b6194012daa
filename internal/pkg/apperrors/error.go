// Package apperrors defines the structured error type surfaced by every
// Docbox component, following the ten error kinds of spec.md §7.
package apperrors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error.
type AppError struct {
	Code    int    // one of the Err* constants in codes.go
	Message string // human-readable message
	Err     error  // underlying error, if any
	Details string // additional details (field name, stage name, ...)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code.
func New(code int, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Code: code, Message: GetMessage(code), Details: detail}
}

// Wrap wraps an existing error with an error code.
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if len(details) > 0 && details[0] != "" {
			appErr.Details = details[0]
		}
		return appErr
	}

	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Code: code, Message: GetMessage(code), Err: err, Details: detail}
}

// Wrapf wraps an error with formatted details.
func Wrapf(err error, code int, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is checks if err is an AppError with the given code.
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ExtractCode extracts the error code from an error, defaulting to Internal.
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// NewNotFound creates a NotFound error naming the missing subject.
func NewNotFound(subject string) *AppError {
	return New(ErrNotFound, subject)
}

// NewConflict creates a Conflict error, e.g. a cyclic folder parent.
func NewConflict(details string) *AppError {
	return New(ErrConflict, details)
}

// NewValidationFailed creates a ValidationFailed{field} error.
func NewValidationFailed(field string) *AppError {
	return New(ErrValidationFailed, field)
}

// NewProcessingFailure creates a ProcessingFailure{stage} error.
func NewProcessingFailure(stage string, err error) *AppError {
	return Wrap(err, ErrProcessingFailure, stage)
}

// NewTooBusy creates a TooBusy error for a saturated bounded queue.
func NewTooBusy() *AppError {
	return New(ErrTooBusy)
}

// NewExpired creates an Expired error for a presigned task past deadline.
func NewExpired() *AppError {
	return New(ErrExpired)
}
