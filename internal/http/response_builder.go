// Package http provides the HTTP server and handlers of the loan API.
//
// This file implements the Builder Pattern for constructing JSON responses.
// It provides a fluent API for status, headers and body, and a single mapping
// from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"peerlend/internal/core"
	"peerlend/internal/storage"
)

// Error codes returned in the error envelope.
const (
	CodeBadRequest           = "bad_request"
	CodeValidation           = "validation_failed"
	CodeUnsupportedFrequency = "unsupported_frequency"
	CodeOutOfRange           = "out_of_range"
	CodeNoAssessment         = "no_approved_assessment"
	CodeCapacityExceeded     = "capacity_exceeded"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeRateLimited          = "rate_limited"
	CodeUnavailable          = "unavailable"
	CodeInternal             = "internal_error"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// StatusCode returns the status the response will be written with.
func (b *JSONResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal_error","message":"failed to encode response"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates a response carrying the standard error envelope.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, "internal error")
}

// DomainError maps an error returned by the loan service to a response.
// Unrecognized errors become a 500 whose message hides the cause.
func DomainError(err error) *JSONResponseBuilder {
	switch {
	case errors.Is(err, core.ErrNoApprovedAssessment):
		return ErrorResponse(http.StatusForbidden, CodeNoAssessment, err.Error())
	case errors.Is(err, core.ErrCapacityExceeded):
		return ErrorResponse(http.StatusForbidden, CodeCapacityExceeded, err.Error())
	case errors.Is(err, core.ErrUnsupportedFrequency):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeUnsupportedFrequency, err.Error())
	case errors.Is(err, core.ErrOutOfRange):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeOutOfRange, err.Error())
	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, CodeValidation, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return NotFoundError("not found")
	case errors.Is(err, storage.ErrConflict):
		return ErrorResponse(http.StatusConflict, CodeConflict, "concurrent modification, retry the request")
	default:
		return InternalServerError()
	}
}
