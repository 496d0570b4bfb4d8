package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindRateLimit
	KindConflict
	KindBadRequest
)

// RetryAfterSeconds is sent with every rate limit rejection.
const RetryAfterSeconds = 60

// UnexpectedMessage is the only detail a client sees for a 500.
const UnexpectedMessage = "An unexpected error occurred. Please try again later."

type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Authentication(msg string) *AppError {
	if msg == "" {
		msg = "Authentication failed"
	}
	return &AppError{Kind: KindAuthentication, Message: msg}
}

func Authorization(msg string) *AppError {
	if msg == "" {
		msg = "Insufficient permissions"
	}
	return &AppError{Kind: KindAuthorization, Message: msg}
}

func NotFound(msg string) *AppError {
	if msg == "" {
		msg = "Resource not found"
	}
	return &AppError{Kind: KindNotFound, Message: msg}
}

func Validation(msg string) *AppError {
	if msg == "" {
		msg = "Validation failed"
	}
	return &AppError{Kind: KindValidation, Message: msg}
}

func RateLimit(msg string) *AppError {
	if msg == "" {
		msg = "Rate limit exceeded"
	}
	return &AppError{Kind: KindRateLimit, Message: msg}
}

func Conflict(msg string) *AppError {
	if msg == "" {
		msg = "Resource conflict"
	}
	return &AppError{Kind: KindConflict, Message: msg}
}

func BadRequest(msg string) *AppError {
	if msg == "" {
		msg = "Bad request"
	}
	return &AppError{Kind: KindBadRequest, Message: msg}
}

func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "internal server error", Err: err}
}

// StatusOf returns the HTTP status for err; anything that is not an AppError is a 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status()
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// TypeName reports the Go type of the innermost wrapped error.
func TypeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
