package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status and API code.
type AppError struct {
	Code    string
	Field   string
	Message string
	Status  int
	Err     error
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", message, http.StatusBadRequest)
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// FieldError is the client-facing view of the error.
func (e *AppError) FieldError() FieldError {
	return FieldError{Code: e.Code, Field: e.Field, Message: e.Message}
}
