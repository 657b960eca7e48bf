package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is the error body returned by the HTTP API.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render sets the response status for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError without details.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

func (e *APIError) withDetails(details interface{}) *APIError {
	cp := *e
	cp.Details = details
	return &cp
}

var (
	ErrNotFound        = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrBatchRunning    = New(http.StatusConflict, "BATCH_RUNNING", "Another batch is still running")
	ErrBatchesDisabled = New(http.StatusServiceUnavailable, "UNAVAILABLE", "Batch execution is not configured")
)

// InvalidRequestWithError reports a request body that failed to decode or
// validate.
func InvalidRequestWithError(err error) *APIError {
	return New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request").withDetails(err.Error())
}

// NotFoundError names the missing resource.
func NotFoundError(resource string) *APIError {
	return New(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).withDetails(resource)
}

// FromError maps an AppError type onto a status code. Untyped errors are 500s.
func FromError(err error) *APIError {
	var status int
	var code, msg string
	switch {
	case IsType(err, ErrTypeDataIntegrity):
		status, code, msg = http.StatusUnprocessableEntity, "DATA_INTEGRITY", "Input failed integrity checks"
	case IsType(err, ErrTypeValidation), IsType(err, ErrTypeConfig):
		status, code, msg = http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed"
	case IsType(err, ErrTypeMissingData):
		status, code, msg = http.StatusNotFound, "MISSING_DATA", "Requested data is not available"
	case IsType(err, ErrTypeSource):
		status, code, msg = http.StatusBadGateway, "SOURCE_UNAVAILABLE", "Quote source failed"
	default:
		status, code, msg = http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error"
	}
	return New(status, code, msg).withDetails(err.Error())
}

// ErrorResponse wraps an APIError in the response envelope.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}
