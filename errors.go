package toolflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skosovsky/toolflow/schema"
)

// Sentinel errors for toolflow. Use errors.Is to check.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrTimeout      = errors.New("tool execution timeout")
	ErrValidation   = errors.New("validation failed")
	ErrDecode       = errors.New("arguments are not valid JSON")
	ErrShutdown     = errors.New("registry is shutting down")
)

// ClientError is an error that should be sent back to the model for
// self-correction (e.g. invalid JSON, schema validation failure, bad enum
// value). Do not put stack traces or internal details in Reason.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Retryable is set by the application. When true the model may retry the
	// same call without changing arguments (e.g. transient rate limit).
	Retryable bool
	Err       error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (DB down, panic, etc.).
// The model does not see the underlying error message.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

func decodeError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error(), Err: fmt.Errorf("%w: %w", ErrDecode, err)}
}

func validationError(err error) error {
	if IsClientError(err) {
		return err
	}
	return &ClientError{Reason: err.Error(), Err: fmt.Errorf("%w: %w", ErrValidation, err)}
}

// wrapHandlerError passes through ClientError and SystemError, reports deadline
// expiry as a retryable timeout and wraps anything else as SystemError.
func wrapHandlerError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsClientError(err), IsSystemError(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Reason: "tool execution timed out", Retryable: true, Err: ErrTimeout}
	default:
		return &SystemError{Err: err}
	}
}

// panicError wraps a recovered panic value for SystemError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}

// ErrorPayload is the serialized form of a failed tool call. It is returned
// to the model in place of the tool result.
type ErrorPayload struct {
	Error     string `json:"error"`
	Path      string `json:"path,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewErrorPayload describes err for the model. SystemError details stay
// hidden.
func NewErrorPayload(err error) ErrorPayload {
	err = wrapHandlerError(err)
	p := ErrorPayload{Error: err.Error()}
	var ce *ClientError
	if errors.As(err, &ce) {
		p.Retryable = ce.Retryable
		if ve, ok := schema.AsValidationError(ce.Err); ok {
			p.Path = ve.Path
		}
	}
	return p
}

func errorPayload(err error) string {
	data, mErr := json.Marshal(NewErrorPayload(err))
	if mErr != nil {
		return `{"error":"internal system error during tool execution"}`
	}
	return string(data)
}
