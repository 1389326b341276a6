package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the common failure classes.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStepFailed        = errors.New("saga step failed")
	ErrSagaStateUpdate   = errors.New("saga state update failed")
)

// AppError is a structured application error with an HTTP status mapping and
// a retryability classification used by the saga retry policy.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	// Retryable reports whether retrying the failed operation can succeed
	// without any external change (stock refill, new payment instrument).
	Retryable bool  `json:"-"`
	Err       error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error. Validation failures are never retryable.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error. Overload and open-circuit failures
// are retryable by definition.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:      "SERVICE_UNAVAILABLE",
		Message:   message,
		Status:    http.StatusServiceUnavailable,
		Retryable: true,
		Err:       ErrServiceUnavail,
	}
}

// InsufficientStock creates a 422 error for a reservation that cannot be
// satisfied. Retrying will not change the outcome until stock changes, so it
// is classified non-retryable.
func InsufficientStock(message string) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrInsufficientStock,
	}
}

// StepFailed creates an error for a failed saga step, carrying the remote
// service's message and retryability classification.
func StepFailed(step, message string, retryable bool) *AppError {
	return &AppError{
		Code:      "SAGA_STEP_FAILED",
		Message:   fmt.Sprintf("%s: %s", step, message),
		Status:    http.StatusBadGateway,
		Retryable: retryable,
		Err:       ErrStepFailed,
	}
}

// SagaStateUpdate creates an error for a failed saga ledger write. It carries
// the order number because it signals possible divergence between external
// effects and recorded state, which needs operator attention.
func SagaStateUpdate(orderNumber string, err error) *AppError {
	return &AppError{
		Code:    "SAGA_STATE_UPDATE_FAILED",
		Message: fmt.Sprintf("failed to persist saga state for order %s", orderNumber),
		Status:  http.StatusInternalServerError,
		Err:     fmt.Errorf("%w: %w", ErrSagaStateUpdate, err),
	}
}

// IsRetryable reports the retryability classification of an error chain.
// Unclassified errors default to non-retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
