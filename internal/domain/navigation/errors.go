package navigation

import (
	"errors"
	"fmt"
)

// RoutingErrorKind classifies a failed routing-engine call.
type RoutingErrorKind string

const (
	// NoPathFound means the engine cannot connect the two points. Retrying
	// with the same endpoints will not help.
	NoPathFound RoutingErrorKind = "no_path_found"
	// EngineUnavailable covers transport failures, timeouts and non-success
	// answers. Safe to retry with backoff.
	EngineUnavailable RoutingErrorKind = "engine_unavailable"
)

// Error codes carried by error events.
const (
	CodeNoPathFound       = string(NoPathFound)
	CodeEngineUnavailable = string(EngineUnavailable)
	CodeValidation        = "validation_failed"
	CodeState             = "invalid_state"
	CodeInternal          = "internal_error"
)

// RoutingError is returned by route fetchers.
type RoutingError struct {
	Kind   RoutingErrorKind
	Detail string
	Err    error
}

var (
	// ErrNoPathFound matches any RoutingError of kind NoPathFound via errors.Is.
	ErrNoPathFound = &RoutingError{Kind: NoPathFound}
	// ErrEngineUnavailable matches any RoutingError of kind EngineUnavailable via errors.Is.
	ErrEngineUnavailable = &RoutingError{Kind: EngineUnavailable}
)

// NewNoPathFound creates a NoPathFound routing error.
func NewNoPathFound(detail string) *RoutingError {
	return &RoutingError{Kind: NoPathFound, Detail: detail}
}

// NewEngineUnavailable creates an EngineUnavailable routing error wrapping cause.
func NewEngineUnavailable(detail string, cause error) *RoutingError {
	return &RoutingError{Kind: EngineUnavailable, Detail: detail, Err: cause}
}

func (e *RoutingError) Error() string {
	msg := "routing: " + string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is matches another RoutingError of the same kind.
func (e *RoutingError) Is(target error) bool {
	t, ok := target.(*RoutingError)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the same request may succeed later.
func (e *RoutingError) Retryable() bool {
	return e.Kind == EngineUnavailable
}

// ValidationError reports a malformed inbound request. The client must fix
// and resend it.
type ValidationError struct {
	Detail string
}

// NewValidationError creates a ValidationError.
func NewValidationError(detail string) *ValidationError {
	return &ValidationError{Detail: detail}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Detail
}

// StateError reports an operation that is not valid in the session's
// current state.
type StateError struct {
	Op     string
	State  State
	Detail string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed while %s: %s", e.Op, e.State, e.Detail)
}

// ErrorCode maps an error to the code carried by error events.
func ErrorCode(err error) string {
	var re *RoutingError
	var ve *ValidationError
	var se *StateError
	switch {
	case errors.As(err, &re):
		return string(re.Kind)
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &se):
		return CodeState
	default:
		return CodeInternal
	}
}

// IsRetryable reports whether err is a transient routing failure.
func IsRetryable(err error) bool {
	var re *RoutingError
	return errors.As(err, &re) && re.Retryable()
}
