// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input shape errors, raised at the resampler and engine boundaries
	ErrSchema           = &Error{Code: "SCHEMA_INVALID", Message: "bar is missing required fields"}
	ErrIndexNotTemporal = &Error{Code: "INDEX_NOT_TEMPORAL", Message: "index is not a strictly sortable time index"}
	ErrIndexMisaligned  = &Error{Code: "INDEX_MISALIGNED", Message: "price and signal indices are not aligned"}
	ErrPrecondition     = &Error{Code: "PRECONDITION_FAILED", Message: "backtest precondition failed"}
	ErrInvalidTimeframe = &Error{Code: "INVALID_TIMEFRAME", Message: "invalid timeframe"}

	// Data errors
	ErrNoData           = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}
	ErrNotFound         = &Error{Code: "NOT_FOUND", Message: "not found"}

	// Strategy errors
	ErrUnknownStrategy = &Error{Code: "UNKNOWN_STRATEGY", Message: "unknown strategy"}
	ErrStrategyFailed  = &Error{Code: "STRATEGY_FAILED", Message: "strategy signal generation failed"}

	// Collaborator errors
	ErrCollectorFailed = &Error{Code: "COLLECTOR_FAILED", Message: "collector failed"}
	ErrStorageFailed   = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// LLM errors
	ErrLLMFailed = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
)
