package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError reports malformed input, rejected before touching state.
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewNotFound reports an unknown resource id.
func NewNotFound(resource, id string) error {
	return NewDomainError("NOT_FOUND", fmt.Sprintf("%s %s not found", resource, id),
		http.StatusNotFound, map[string]any{"id": id})
}

// NewInvalidTransition reports a trigger that is not legal from the current
// status. Details name the actual and expected states so the caller can act.
func NewInvalidTransition(trigger string, actual any, expected any) error {
	return NewDomainError("INVALID_TRANSITION",
		fmt.Sprintf("cannot %s from status %v", trigger, actual),
		http.StatusConflict,
		map[string]any{"trigger": trigger, "actual_status": actual, "expected_status": expected})
}

// NewStaleVersion reports an optimistic-concurrency conflict. The caller
// must re-read the ticket and retry with the current version.
func NewStaleVersion(expected, actual int64) error {
	return NewDomainError("STALE_VERSION",
		"ticket changed since it was last read; reload and retry",
		http.StatusConflict,
		map[string]any{"expected_version": expected, "actual_version": actual})
}

// NewEngineUnavailable reports an analysis dispatch/callback channel failure.
func NewEngineUnavailable(err error) error {
	return &DomainError{
		Code:       "ENGINE_UNAVAILABLE",
		Message:    "analysis engine unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewStorageError wraps a persistence failure. Never retried silently; the
// caller decides whether to retry the whole operation.
func NewStorageError(err error) error {
	return &DomainError{
		Code:       "STORAGE_ERROR",
		Message:    "storage failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
