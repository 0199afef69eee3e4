package types

import (
	"errors"
	"fmt"
	"time"
)

// Platform identifies where the failing invocation originated.
type Platform string

const (
	// PlatformWeb indicates a browser-based client.
	PlatformWeb Platform = "web"

	// PlatformServer indicates a server-side invocation.
	PlatformServer Platform = "server"

	// PlatformMobile indicates a mobile client.
	PlatformMobile Platform = "mobile"
)

// Context is an immutable snapshot of the failing invocation, captured by
// the caller at failure time. The engine only reads it; it is never
// persisted by the engine itself.
//
// Tool and Operation are required. Everything else is optional context
// that improves classification and planning quality.
type Context struct {
	// Tool is the name of the tool whose invocation failed (required).
	Tool string `json:"tool"`

	// Operation is the specific operation that failed (required).
	Operation string `json:"operation"`

	// Parameters holds the invocation parameters as an opaque mapping.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Timestamp is when the failure occurred. Zero means "now" as far as
	// the engine is concerned; it never rewrites the field.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// SessionID correlates failures from the same caller session.
	SessionID string `json:"session_id,omitempty"`

	// UserAgent is the client/user-agent string of the caller.
	UserAgent string `json:"user_agent,omitempty"`

	// PreviousAttempts counts earlier attempts of this same operation.
	// Planners use it to decay retry confidence and stretch delays.
	PreviousAttempts int `json:"previous_attempts,omitempty"`

	// Platform tags the originating environment.
	Platform Platform `json:"platform,omitempty"`
}

// WithAttempt returns a copy of the context with PreviousAttempts set,
// for re-classifying after another failed attempt.
func (c Context) WithAttempt(n int) Context {
	c.PreviousAttempts = n
	return c
}

// ErrMissingField is wrapped by Validate for each absent required field.
var ErrMissingField = errors.New("missing required field")

// Validate checks that the context carries the fields the engine needs.
func (c Context) Validate() error {
	if c.Tool == "" {
		return fmt.Errorf("%w: tool", ErrMissingField)
	}
	if c.Operation == "" {
		return fmt.Errorf("%w: operation", ErrMissingField)
	}
	if c.PreviousAttempts < 0 {
		return fmt.Errorf("previous_attempts must not be negative, got %d", c.PreviousAttempts)
	}
	return nil
}
