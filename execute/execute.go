package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zero-day-ai/recovery/plan"
	"github.com/zero-day-ai/recovery/types"
)

// Operation re-runs the operation that originally failed. The engine
// calls it for retry actions with the same invocation context.
type Operation func(ctx context.Context, ectx types.Context) error

// ToolInvoker runs the failed operation through a named substitute tool.
type ToolInvoker func(ctx context.Context, tool string, ectx types.Context) error

// Handler is a caller-supplied hook carried inside action parameters,
// used for rollback actions.
type Handler func(ctx context.Context) error

var (
	// ErrUnknownAction is returned for an action type the executor does
	// not recognize.
	ErrUnknownAction = errors.New("execute: unknown action type")

	// ErrNoOperation is returned when a retry action arrives but no
	// Operation hook was configured.
	ErrNoOperation = errors.New("execute: no operation hook configured")

	// ErrNoInvoker is returned when an alternative-tool action arrives
	// but no ToolInvoker hook was configured.
	ErrNoInvoker = errors.New("execute: no tool invoker configured")

	// ErrNoTool is returned when an alternative-tool action carries no
	// target tool parameter.
	ErrNoTool = errors.New("execute: action has no target tool")
)

// Result is the outcome of executing one action. Failures during
// execution are recorded here, not returned as errors.
type Result struct {
	// ActionID identifies the executed action.
	ActionID string `json:"action_id"`

	// Type is the executed action's type.
	Type types.ActionType `json:"type"`

	// Success is true when the action completed and resolved the failure.
	Success bool `json:"success"`

	// Deferred is true when the action needs a human and was handed off
	// rather than executed. Deferred results are never successes.
	Deferred bool `json:"deferred"`

	// Attempts counts how many executions were tried.
	Attempts int `json:"attempts"`

	// ExecutionTime is the wall-clock cost of the execution.
	ExecutionTime time.Duration `json:"execution_time"`

	// Reason explains deferred or failed outcomes.
	Reason string `json:"reason,omitempty"`

	// Err is the last execution error, nil on success and on deferral.
	Err error `json:"-"`
}

// Config tunes action execution. Zero values fall back to defaults.
type Config struct {
	// AttemptTimeout caps each individual attempt.
	AttemptTimeout time.Duration

	// MaxRetries bounds retry attempts when the action itself does not.
	MaxRetries int

	// BaseDelay is the wait before the first retry when the action
	// carries no delay parameter.
	BaseDelay time.Duration

	// MaxDelay caps the grown backoff delay.
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay between consecutive attempts.
	BackoffMultiplier float64
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = 2.0
	}
	return c
}

// Executor runs recovery actions through the configured hooks.
type Executor struct {
	operation Operation
	invoker   ToolInvoker
	cfg       Config
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithOperation attaches the hook that re-runs the failed operation.
func WithOperation(op Operation) Option {
	return func(e *Executor) { e.operation = op }
}

// WithToolInvoker attaches the hook that runs alternative tools.
func WithToolInvoker(inv ToolInvoker) Option {
	return func(e *Executor) { e.invoker = inv }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New builds an Executor. Hooks are optional; actions that need a
// missing hook fail with a wiring error at execution time.
func New(cfg Config, opts ...Option) *Executor {
	e := &Executor{cfg: cfg.withDefaults(), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs a single recovery action.
//
// The returned error covers invalid input only (unknown action type,
// missing hook, missing tool parameter). Execution failures set
// Result.Success false and Result.Err; a panic inside a hook is
// recovered into the same shape.
func (e *Executor) Execute(ctx context.Context, action plan.Action, ectx types.Context) (Result, error) {
	start := time.Now()
	res := Result{ActionID: action.ID, Type: action.Type}

	if !action.Type.Valid() {
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}

	var err error
	switch action.Type {
	case types.ActionRetry:
		err = e.retry(ctx, action, ectx, &res)
	case types.ActionAlternativeTool:
		err = e.alternative(ctx, action, ectx, &res)
	case types.ActionRollback:
		err = e.rollback(ctx, action, &res)
	case types.ActionModifyParams:
		res.Deferred = true
		res.Reason = "parameter changes require caller input"
	case types.ActionManualIntervention:
		res.Deferred = true
		res.Reason = "handed off for manual investigation"
	case types.ActionEscalate:
		res.Deferred = true
		res.Reason = "handed off to an operator"
	}
	if err != nil {
		return res, err
	}

	res.ExecutionTime = time.Since(start)
	e.logger.Debug("action executed",
		"action_id", action.ID,
		"type", action.Type,
		"success", res.Success,
		"deferred", res.Deferred,
		"attempts", res.Attempts,
		"execution_time", res.ExecutionTime,
		"error", res.Err)
	return res, nil
}

// retry re-runs the failed operation with backoff between attempts.
// Waits are cancellation-aware; a cancelled context stops the loop with
// the context's error on the result.
func (e *Executor) retry(ctx context.Context, action plan.Action, ectx types.Context, res *Result) error {
	if e.operation == nil {
		return ErrNoOperation
	}

	maxAttempts := e.cfg.MaxRetries
	if n, ok := action.Parameters["max_retries"].(int); ok && n > 0 {
		maxAttempts = n
	}
	delay := e.cfg.BaseDelay
	if d, ok := action.Parameters["delay"].(time.Duration); ok && d > 0 {
		delay = d
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		err := e.attempt(ctx, func(actx context.Context) error {
			return e.operation(actx, ectx)
		})
		if err == nil {
			res.Success = true
			res.Err = nil
			return nil
		}
		res.Err = err

		if attempt == maxAttempts {
			break
		}
		if werr := e.wait(ctx, delay); werr != nil {
			res.Err = werr
			res.Reason = "cancelled while waiting to retry"
			return nil
		}
		delay = time.Duration(float64(delay) * e.cfg.BackoffMultiplier)
		if delay > e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay
		}
	}

	res.Reason = fmt.Sprintf("all %d attempts failed", res.Attempts)
	return nil
}

func (e *Executor) alternative(ctx context.Context, action plan.Action, ectx types.Context, res *Result) error {
	if e.invoker == nil {
		return ErrNoInvoker
	}
	tool, ok := action.Parameters["tool"].(string)
	if !ok || tool == "" {
		return ErrNoTool
	}

	res.Attempts = 1
	err := e.attempt(ctx, func(actx context.Context) error {
		return e.invoker(actx, tool, ectx)
	})
	if err != nil {
		res.Err = err
		res.Reason = fmt.Sprintf("alternative tool %q failed", tool)
		return nil
	}
	res.Success = true
	return nil
}

// rollback runs the handler the caller attached to the action; without
// one the action is deferred, since the engine cannot invent a way to
// undo side effects it never saw.
func (e *Executor) rollback(ctx context.Context, action plan.Action, res *Result) error {
	handler, ok := action.Parameters["handler"].(Handler)
	if !ok || handler == nil {
		res.Deferred = true
		res.Reason = "no rollback handler attached"
		return nil
	}

	res.Attempts = 1
	err := e.attempt(ctx, handler)
	if err != nil {
		res.Err = err
		res.Reason = "rollback handler failed"
		return nil
	}
	res.Success = true
	return nil
}

// attempt runs fn under the per-attempt timeout, converting a panic in
// the hook into an error.
func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) (err error) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return fn(actx)
}

func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
