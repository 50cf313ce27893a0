// Package errors provides custom error types for the CC Executor application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Executor-specific codes.
	ErrCodeConfig              = "CONFIG_ERROR"
	ErrCodeAdmission           = "ADMISSION_ERROR"
	ErrCodeProtocol            = "PROTOCOL_ERROR"
	ErrCodeAlreadyRunning      = "ALREADY_RUNNING"
	ErrCodeNoActiveExecution   = "NO_ACTIVE_EXECUTION"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeCommandNotAllowed   = "COMMAND_NOT_ALLOWED"
	ErrCodeInvalidCommand      = "INVALID_COMMAND"
	ErrCodeHookAborted         = "HOOK_ABORTED"
	ErrCodeSpawnError          = "SPAWN_ERROR"
	ErrCodeTimingStoreDown     = "TIMING_STORE_UNAVAILABLE"
)

// JSON-RPC 2.0 error codes, reserved ranges per spec plus an application-defined band.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603

	RPCAlreadyRunning    = -32000
	RPCNoActiveExecution = -32001
	RPCInvalidState      = -32002
	RPCCommandNotAllowed = -32003
	RPCInvalidCommand    = -32004
	RPCHookAborted       = -32005
	RPCSpawnError        = -32006
	RPCAdmissionRejected = -32007
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	RPCCode    int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
		RPCCode:    RPCInvalidParams,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		RPCCode:    RPCInvalidParams,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		RPCCode:    RPCInternalError,
		Err:        err,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		RPCCode:    RPCInternalError,
	}
}

// Config creates a new configuration error. Callers in cmd/cc-executor treat this
// as fatal at startup.
func Config(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeConfig,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		RPCCode:    RPCInternalError,
		Err:        err,
	}
}

// Admission creates a new session-admission-rejected error (registry at capacity).
func Admission(message string) *AppError {
	return &AppError{
		Code:       ErrCodeAdmission,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		RPCCode:    RPCAdmissionRejected,
	}
}

// Protocol creates a new malformed-JSON-RPC-envelope error.
func Protocol(message string) *AppError {
	return &AppError{
		Code:       ErrCodeProtocol,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		RPCCode:    RPCInvalidRequest,
	}
}

// AlreadyRunning creates the error returned when execute is called on a session
// that already owns a running execution and queueing is disabled.
func AlreadyRunning(sessionID string) *AppError {
	return &AppError{
		Code:       ErrCodeAlreadyRunning,
		Message:    fmt.Sprintf("session '%s' already has an execution running", sessionID),
		HTTPStatus: http.StatusConflict,
		RPCCode:    RPCAlreadyRunning,
	}
}

// NoActiveExecution creates the error returned when control targets a session with
// nothing running.
func NoActiveExecution(sessionID string) *AppError {
	return &AppError{
		Code:       ErrCodeNoActiveExecution,
		Message:    fmt.Sprintf("session '%s' has no active execution", sessionID),
		HTTPStatus: http.StatusConflict,
		RPCCode:    RPCNoActiveExecution,
	}
}

// InvalidState creates the error returned when control requests an action not valid
// from the execution's current state (e.g. resume on a running execution).
func InvalidState(action, state string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidState,
		Message:    fmt.Sprintf("action '%s' is not valid from state '%s'", action, state),
		HTTPStatus: http.StatusConflict,
		RPCCode:    RPCInvalidState,
	}
}

// CommandNotAllowed creates the error returned when a command fails the allowlist check.
func CommandNotAllowed(command string) *AppError {
	return &AppError{
		Code:       ErrCodeCommandNotAllowed,
		Message:    fmt.Sprintf("command '%s' is not on the configured allowlist", command),
		HTTPStatus: http.StatusForbidden,
		RPCCode:    RPCCommandNotAllowed,
	}
}

// InvalidCommand creates the error returned when a command string fails to lex.
func InvalidCommand(message string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidCommand,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		RPCCode:    RPCInvalidCommand,
	}
}

// HookAborted creates the error returned when a pre_execute/pre_claude hook vetoes a
// command. message is surfaced verbatim as the JSON-RPC error message (the hook's own
// "error" field, e.g. "forbidden"), not wrapped with any additional text.
func HookAborted(message string) *AppError {
	return &AppError{
		Code:       ErrCodeHookAborted,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		RPCCode:    RPCHookAborted,
	}
}

// SpawnError creates the error returned when exec.Cmd.Start fails.
func SpawnError(command string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeSpawnError,
		Message:    fmt.Sprintf("failed to spawn command '%s'", command),
		HTTPStatus: http.StatusInternalServerError,
		RPCCode:    RPCSpawnError,
		Err:        err,
	}
}

// TimingStoreUnavailable creates a non-fatal error logged when a timing store backend
// fails; callers degrade to defaults rather than propagate this.
func TimingStoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       ErrCodeTimingStoreDown,
		Message:    "timing store unavailable, falling back to defaults",
		HTTPStatus: http.StatusOK,
		RPCCode:    RPCInternalError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			RPCCode:    appErr.RPCCode,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		RPCCode:    RPCInternalError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetRPCCode returns the JSON-RPC error code for an error.
// Returns the generic internal-error code if the error is not an AppError.
func GetRPCCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RPCCode
	}
	return RPCInternalError
}

// GetMessage returns the bare message for an error, without the Code: prefix Error()
// adds — e.g. exactly "forbidden" for a HookAborted, not "HOOK_ABORTED: forbidden".
// Falls back to err.Error() if the error is not an AppError.
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
