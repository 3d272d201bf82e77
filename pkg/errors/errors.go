package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents an application error
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"errors,omitempty"`
	Err     error        `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinel values below
// work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// StatusCode maps the error code onto an HTTP status
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrValidation, ErrSchedulingConflict, ErrInvalidStateTransition:
		return http.StatusUnprocessableEntity
	case ErrTooManyRequests:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrSchedulingConflict
	ErrInvalidStateTransition
	ErrTooManyRequests
	ErrTimeout
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:               "not_found",
	ErrBadRequest:             "bad_request",
	ErrUnauthorized:           "unauthorized",
	ErrForbidden:              "forbidden",
	ErrInternal:               "internal",
	ErrValidation:             "validation_error",
	ErrSchedulingConflict:     "scheduling_conflict",
	ErrInvalidStateTransition: "invalid_state_transition",
	ErrTooManyRequests:        "rate_limited",
	ErrTimeout:                "timeout",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_%d", int(c))
}

// Kind sentinels for errors.Is checks
var (
	NotFoundKind          = &AppError{Code: ErrNotFound}
	ForbiddenKind         = &AppError{Code: ErrForbidden}
	ValidationKind        = &AppError{Code: ErrValidation}
	ConflictKind          = &AppError{Code: ErrSchedulingConflict}
	InvalidTransitionKind = &AppError{Code: ErrInvalidStateTransition}
	InternalKind          = &AppError{Code: ErrInternal}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewForbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

func NewValidation(fields ...FieldError) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: "the given data was invalid",
		Fields:  fields,
	}
}

// NewFieldValidation is shorthand for a single rejected field
func NewFieldValidation(field, message string) *AppError {
	return NewValidation(FieldError{Field: field, Message: message})
}

func NewSchedulingConflict(message string) *AppError {
	if message == "" {
		message = "the staff member already has an appointment at this time, please choose a different time"
	}
	return &AppError{
		Code:    ErrSchedulingConflict,
		Message: message,
	}
}

func NewInvalidStateTransition(err error) *AppError {
	return &AppError{
		Code:    ErrInvalidStateTransition,
		Message: err.Error(),
		Err:     err,
	}
}

func NewTooManyRequests() *AppError {
	return &AppError{
		Code:    ErrTooManyRequests,
		Message: "rate limit exceeded",
	}
}

func NewTimeout(err error) *AppError {
	return &AppError{
		Code:    ErrTimeout,
		Message: "request timeout",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// AsAppError returns err as an AppError, wrapping unknown errors as internal
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}

// CodeOf reports the code of err, or ErrInternal for foreign errors
func CodeOf(err error) ErrorCode {
	return AsAppError(err).Code
}
