// Package apperr defines the error taxonomy shared by every component.
// Callers wrap one of the sentinels with fmt.Errorf("%w: ...") and classify
// with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or missing input, rejected before any state change
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing project, run or export
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation that is not legal from the current state
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks a violation of the single active export per project
	ErrConflict = errors.New("conflict")
	// ErrBudgetGateBlocked marks an apply refused because spend exceeds the budget
	ErrBudgetGateBlocked = errors.New("budget gate blocked")
	// ErrProvider marks a failed cloud provider call
	ErrProvider = errors.New("provider error")
	// ErrExecutor marks a failed apply delegate
	ErrExecutor = errors.New("executor error")
	// ErrInvalidConfig marks a budget configuration that cannot be evaluated
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Validation wraps ErrValidation with a formatted message
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound for the named entity
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// InvalidState wraps ErrInvalidState with a formatted message
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted message
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code the REST surface reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBudgetGateBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProvider), errors.Is(err, ErrExecutor):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
