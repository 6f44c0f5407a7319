package api

import "fmt"

// ErrorCode is an MLflow protocol error code.
type ErrorCode string

const (
	ErrorCodeResourceDoesNotExist  ErrorCode = "RESOURCE_DOES_NOT_EXIST"
	ErrorCodeResourceAlreadyExists ErrorCode = "RESOURCE_ALREADY_EXISTS"
	ErrorCodeInvalidParameterValue ErrorCode = "INVALID_PARAMETER_VALUE"
	ErrorCodeInvalidState          ErrorCode = "INVALID_STATE"
	ErrorCodeConfigurationError    ErrorCode = "CONFIGURATION_ERROR"
	ErrorCodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	ErrorCodeInternalError         ErrorCode = "INTERNAL_ERROR"
)

// TrackingError is a structured tracking protocol error carrying an MLflow
// error code and a human-readable message.
type TrackingError struct {
	Code    ErrorCode `json:"error_code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *TrackingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse wraps a TrackingError for JSON serialization as the top-level
// error body of the REST protocol.
type ErrorResponse struct {
	Error *TrackingError `json:"error"`
}

// NewNotFoundError creates a TrackingError for resources that cannot be found.
func NewNotFoundError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeResourceDoesNotExist,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewAlreadyExistsError creates a TrackingError for duplicate resources.
func NewAlreadyExistsError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeResourceAlreadyExists,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInvalidParameterError creates a TrackingError for invalid request values.
func NewInvalidParameterError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeInvalidParameterValue,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInvalidStateError creates a TrackingError for operations that are not
// legal in the current run or experiment state.
func NewInvalidStateError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeInvalidState,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewConfigurationError creates a TrackingError for invalid or incomplete
// client-side configuration, such as an unknown connection provider name or
// a missing required option.
func NewConfigurationError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeConfigurationError,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewPermissionDeniedError creates a TrackingError for failed authentication
// or authorization.
func NewPermissionDeniedError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodePermissionDenied,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInternalError creates a TrackingError for server-side failures.
func NewInternalError(format string, args ...any) *TrackingError {
	return &TrackingError{
		Code:    ErrorCodeInternalError,
		Message: fmt.Sprintf(format, args...),
	}
}

// HTTPStatus maps an error code to the HTTP status the REST protocol uses
// for it.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrorCodeResourceDoesNotExist:
		return 404
	case ErrorCodeResourceAlreadyExists:
		return 409
	case ErrorCodeInvalidParameterValue, ErrorCodeInvalidState, ErrorCodeConfigurationError:
		return 400
	case ErrorCodePermissionDenied:
		return 403
	default:
		return 500
	}
}
