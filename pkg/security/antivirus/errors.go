package antivirus

import (
	"errors"
	"fmt"
)

// Error codes for machine-readable classification of engine failures.
const (
	CodeUnavailable = "engine_unavailable"
	CodeTimeout     = "scan_timeout"
	CodeEngine      = "engine_error"
)

var (
	// ErrEngineUnavailable matches any failure to reach or talk to the engine.
	ErrEngineUnavailable = errors.New("antivirus engine unavailable")
	// ErrScanTimeout matches scans that exceeded their time bound.
	ErrScanTimeout = errors.New("antivirus scan timed out")
)

// Error is returned by every Scanner implementation in this package.
type Error struct {
	Code    string
	Engine  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Engine, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Engine, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the package sentinels by code.
// Engine-reported errors count as unavailability.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrEngineUnavailable:
		return e.Code == CodeUnavailable || e.Code == CodeEngine
	case ErrScanTimeout:
		return e.Code == CodeTimeout
	}
	return false
}

func newUnavailableError(engine, msg string, cause error) *Error {
	return &Error{Code: CodeUnavailable, Engine: engine, Message: msg, Cause: cause}
}

func newTimeoutError(engine, msg string, cause error) *Error {
	return &Error{Code: CodeTimeout, Engine: engine, Message: msg, Cause: cause}
}

func newEngineError(engine, msg string, cause error) *Error {
	return &Error{Code: CodeEngine, Engine: engine, Message: msg, Cause: cause}
}

// IsTimeout reports whether err is or wraps a scan timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrScanTimeout)
}

// IsUnavailable reports whether err is or wraps an engine unavailability.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable)
}
