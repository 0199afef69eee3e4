package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{Op: "Engine.GenerateRecoveryPlan", Kind: KindValidation}
	assert.Equal(t, "recovery: Engine.GenerateRecoveryPlan: validation", err.Error())

	err = NewValidationError("Engine.GenerateRecoveryPlan", errors.New("boom"))
	assert.Contains(t, err.Error(), "Engine.GenerateRecoveryPlan")
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "boom")

	err = err.WithContext(map[string]any{"tool": "http-fetch"})
	assert.Contains(t, err.Error(), "tool")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewExecutionError("Engine.ExecuteRecoveryAction", cause)

	assert.ErrorIs(t, err, cause)

	var rerr *Error
	assert.ErrorAs(t, error(err), &rerr)
	assert.Equal(t, KindExecution, rerr.Kind)
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NewTimeoutError("Engine.GenerateRecoveryPlan", nil)

	assert.ErrorIs(t, err, &Error{Kind: KindTimeout})
	assert.ErrorIs(t, err, &Error{Op: "Engine.GenerateRecoveryPlan", Kind: KindTimeout})
	assert.NotErrorIs(t, err, &Error{Kind: KindValidation})
	assert.NotErrorIs(t, err, &Error{Op: "Engine.ClassifyError", Kind: KindTimeout})
}

func TestErrorWithContextCopies(t *testing.T) {
	base := NewInternalError("Engine.New", errors.New("boom"))
	derived := base.WithContext(map[string]any{"k": "v"})

	assert.Nil(t, base.Context)
	assert.Equal(t, "v", derived.Context["k"])
}
