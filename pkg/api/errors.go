package api

import (
	"fmt"
	"net/http"
)

// ErrorType is the machine-readable category of an APIError.
type ErrorType string

const (
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeNotFound       ErrorType = "not_found"
)

var statusByType = map[ErrorType]int{
	ErrorTypeInvalidRequest: http.StatusBadRequest,
	ErrorTypeUnauthorized:   http.StatusUnauthorized,
	ErrorTypeForbidden:      http.StatusForbidden,
	ErrorTypeNotFound:       http.StatusNotFound,
	ErrorTypeServerError:    http.StatusInternalServerError,
}

// APIError is the error body returned by every endpoint.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`

	// Details carries the authenticator-provided failure reason, if any.
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// HTTPStatus returns the response status for the error type. Unknown
// types are server errors.
func (e *APIError) HTTPStatus() int {
	if s, ok := statusByType[e.Type]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the {"error": ...} envelope.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, msg string) *APIError {
	return &APIError{Type: t, Message: msg}
}

// NewInvalidRequestError reports a malformed request; param names the
// offending field or header.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

// NewUnauthorizedError reports failed authentication. details is the
// reason given by the authenticator and may be empty.
func NewUnauthorizedError(message, details string) *APIError {
	e := newError(ErrorTypeUnauthorized, message)
	e.Details = details
	return e
}

func NewForbiddenError(message string) *APIError { return newError(ErrorTypeForbidden, message) }

func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }
