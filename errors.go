package viewhost

import (
	"errors"
	"fmt"
)

// Handler list errors
var (
	ErrNilInstance        = errors.New("view instance is nil")
	ErrNilDefinition      = errors.New("view instance has no view definition")
	ErrNilHandler         = errors.New("handler factory returned a nil handler")
	ErrNilFactory         = errors.New("handler factory is nil")
	ErrNotRunning         = errors.New("handler list is not running")
	ErrNoView             = errors.New("view definition has no view implementation")
	ErrInvalidContextPath = errors.New("invalid context path")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionStoreNil = errors.New("session store is nil")
)

// Config errors
var (
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrDefaultValueParseError     = errors.New("failed to parse default value")
	ErrUnsupportedFormatType      = errors.New("unsupported format type")
	ErrConfigFeederError          = errors.New("config feeder error")
	ErrConfigSetupError           = errors.New("config setup error")
)

// Event errors
var (
	ErrObserverNil = errors.New("observer is nil")
)

// SystemError reports a failure to construct or start a view instance handler.
// It is the only error class surfaced to callers that mutate the handler list; all
// dispatch-time failures are contained by the list itself.
type SystemError struct {
	Message string
	Cause   error
}

// NewSystemError wraps cause with an explanatory message.
func NewSystemError(message string, cause error) *SystemError {
	return &SystemError{Message: message, Cause: cause}
}

func (e *SystemError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}
