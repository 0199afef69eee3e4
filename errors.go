package recovery

import (
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is.
var (
	// ErrInvalidInput indicates a nil error or an incomplete error
	// context was passed to an engine operation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates the engine configuration is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the engine was already closed.
	ErrClosed = errors.New("engine closed")
)

// Error kinds categorize engine errors.
const (
	// KindValidation covers rejected input.
	KindValidation = "validation"

	// KindExecution covers failures while running a recovery action.
	KindExecution = "execution"

	// KindTimeout covers engine-imposed deadline expiry.
	KindTimeout = "timeout"

	// KindInternal covers everything the engine cannot attribute.
	KindInternal = "internal"
)

// Error is the structured error type returned by engine operations. It
// wraps the underlying cause with the operation name and a kind, and
// supports errors.Is and errors.As through Unwrap.
type Error struct {
	// Op is the operation that failed (e.g. "Engine.GenerateRecoveryPlan").
	Op string

	// Kind categorizes the error.
	Kind string

	// Err is the underlying cause.
	Err error

	// Context carries optional debugging values.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recovery: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("recovery: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("recovery: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind (and Op when the target sets one),
// otherwise delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy with the given context values added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	out := *e
	if out.Context == nil {
		out.Context = make(map[string]any, len(ctx))
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

// NewValidationError creates an Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewExecutionError creates an Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindExecution, Err: err}
}

// NewTimeoutError creates an Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: err}
}

// NewInternalError creates an Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}
