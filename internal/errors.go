package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeUnavailable  ErrorType = "UNAVAILABLE"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidItem      ErrorCode = "INVALID_ITEM"

	ErrCodeEmptyRequisition       ErrorCode = "EMPTY_REQUISITION"
	ErrCodeInsufficientBudget     ErrorCode = "INSUFFICIENT_BUDGET"
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeUnauthorizedTransition ErrorCode = "UNAUTHORIZED_TRANSITION"
	ErrCodeNotFoundOrDenied       ErrorCode = "NOT_FOUND_OR_ACCESS_DENIED"
	ErrCodeRequisitionImmutable   ErrorCode = "REQUISITION_IMMUTABLE"
	ErrCodeNoOrganization         ErrorCode = "NO_ORGANIZATION_SELECTED"
	ErrCodeSequenceLockTimeout    ErrorCode = "SEQUENCE_LOCK_TIMEOUT"
	ErrCodeDeliveryFailed         ErrorCode = "NOTIFICATION_DELIVERY_FAILED"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Retryable  bool        `json:"retryable,omitempty"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so sentinel comparisons survive WithCause
// and WithDetails clones.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Type == t.Type
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewRetryableError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Engine error taxonomy. Validation failures never partially mutate state;
// NotFoundOrAccessDenied is returned identically for missing resources and
// resources owned by another tenant.
var (
	ErrEmptyRequisition   = NewValidationError("requisition has no items", ErrCodeEmptyRequisition)
	ErrInsufficientBudget = NewValidationError("insufficient budget available for this project", ErrCodeInsufficientBudget)
	ErrInvalidTransition  = NewConflictError("requisition cannot move to the requested status", ErrCodeInvalidTransition)
	ErrUnauthorized       = NewForbiddenError("you do not have permission to perform this action", ErrCodeUnauthorizedTransition)
	ErrNotFoundOrDenied   = NewNotFoundError("requisition not found", ErrCodeNotFoundOrDenied)
	ErrResourceNotFound   = NewNotFoundError("resource not found", ErrCodeNotFoundOrDenied)
	ErrImmutable          = NewValidationError("requisition content can only be changed in draft", ErrCodeRequisitionImmutable)
	ErrNoOrganization     = NewForbiddenError("no organization selected", ErrCodeNoOrganization)
	ErrSequenceTimeout    = NewRetryableError("document numbering is busy, retry the submission", ErrCodeSequenceLockTimeout)
	ErrDeliveryFailed     = NewRetryableError("notification delivery failed", ErrCodeDeliveryFailed)

	ErrInvalidCredentials = NewUnauthorizedError("invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("user account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("token has expired", ErrCodeTokenExpired)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      ErrorType   `json:"type"`
		Code      ErrorCode   `json:"code"`
		Message   string      `json:"message"`
		Details   interface{} `json:"details,omitempty"`
		Retryable bool        `json:"retryable,omitempty"`
	}{
		Type:      e.Type,
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	})
}
