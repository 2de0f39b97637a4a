// Package apperrors implements the error-kind taxonomy of spec.md §7 as a
// single error type carrying an HTTP status and structured details,
// generalizing infrastructure/errors/errors.go's ServiceError.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the closed set of error kinds spec.md §7 names.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindAuth       Kind = "AUTH"
	KindConflict   Kind = "CONFLICT"
	KindProvider   Kind = "PROVIDER"
	KindTaskFailed Kind = "TASK_FAILURE"
	KindCancelled  Kind = "CANCELLED"
)

// AppError is the single error type flowing out of the control plane and
// into Run records. It wraps an underlying cause without losing it.
type AppError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails returns e with additional structured detail fields merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp := *e
	cp.Details = merged
	return &cp
}

func new(kind Kind, status int, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, HTTPStatus: status, Err: err}
}

func Validation(message string) *AppError {
	return new(KindValidation, http.StatusBadRequest, message, nil)
}

func NotFound(resource, id string) *AppError {
	return new(KindNotFound, http.StatusNotFound, fmt.Sprintf("%s %q not found", resource, id), nil)
}

func Unauthorized(message string) *AppError {
	return new(KindAuth, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return new(KindAuth, http.StatusForbidden, message, nil)
}

func Conflict(message string) *AppError {
	return new(KindConflict, http.StatusConflict, message, nil)
}

// Provider wraps an upstream provider failure. retryable mirrors the
// timeout/rate_limited/upstream vs auth/bad_request/parse split in
// spec.md §4.3.
func Provider(retryable bool, message string, err error) *AppError {
	e := new(KindProvider, http.StatusBadGateway, message, err)
	e.Retryable = retryable
	return e
}

// TaskFailure wraps an uncaught handler error that takes a Run to FAILED.
func TaskFailure(message string, err error) *AppError {
	return new(KindTaskFailed, http.StatusInternalServerError, message, err)
}

// Cancelled marks a cooperative-cancel observation that takes a Run to
// CANCELLED rather than FAILED.
func Cancelled(message string) *AppError {
	return new(KindCancelled, http.StatusOK, message, nil)
}

func DatabaseError(operation string, err error) *AppError {
	return new(KindTaskFailed, http.StatusInternalServerError, fmt.Sprintf("database: %s", operation), err)
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status for err, defaulting to 500 for
// non-AppError values.
func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}
