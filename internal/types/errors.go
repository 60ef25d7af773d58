package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Every failure that leaves a package as an AppError
// carries one of these codes.
const (
	// Configuration (400). Raised before the pipeline starts.
	ErrCodeConfigUnknownCity  ErrorCode = "config_unknown_city"
	ErrCodeConfigNoSources    ErrorCode = "config_no_sources"
	ErrCodeConfigInvalidValue ErrorCode = "config_invalid_value"

	// Request validation (400).
	ErrCodeValidationInvalidJSON ErrorCode = "validation_invalid_json"
	ErrCodeValidationFailed      ErrorCode = "validation_failed"

	// Per-item pipeline failures. These normally travel as Outcome
	// failures; the codes are used in the failure messages and metrics.
	ErrCodeTransformFailed  ErrorCode = "transform_failed"
	ErrCodeSummaryMalformed ErrorCode = "summary_malformed"
	ErrCodePayloadInvalid   ErrorCode = "payload_invalid"

	// Report output (500).
	ErrCodeReportWrite ErrorCode = "internal_report_write_failed"

	// Internal/Upstream (500/502)
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamForecast    ErrorCode = "upstream_forecast_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "config_"), strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case s == string(ErrCodeTransformFailed),
		s == string(ErrCodeSummaryMalformed),
		s == string(ErrCodePayloadInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Errors that cross a
// package boundary are expressed as AppError so that callers can switch on
// the code and the API layer can map it to a status.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
