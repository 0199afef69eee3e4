package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		ctx     Context
		wantErr bool
	}{
		{
			name: "valid minimal context",
			ctx:  Context{Tool: "http_fetch", Operation: "get"},
		},
		{
			name:    "missing tool",
			ctx:     Context{Operation: "get"},
			wantErr: true,
		},
		{
			name:    "missing operation",
			ctx:     Context{Tool: "http_fetch"},
			wantErr: true,
		},
		{
			name:    "negative previous attempts",
			ctx:     Context{Tool: "http_fetch", Operation: "get", PreviousAttempts: -1},
			wantErr: true,
		},
		{
			name: "full context",
			ctx: Context{
				Tool:             "http_fetch",
				Operation:        "get",
				Parameters:       map[string]any{"url": "https://example.com"},
				SessionID:        "sess-1",
				UserAgent:        "cli/1.0",
				PreviousAttempts: 2,
				Platform:         PlatformServer,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestContextValidateMissingFieldSentinel(t *testing.T) {
	err := Context{}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestContextWithAttemptCopies(t *testing.T) {
	base := Context{Tool: "http_fetch", Operation: "get"}
	derived := base.WithAttempt(3)

	assert.Equal(t, 3, derived.PreviousAttempts)
	assert.Equal(t, 0, base.PreviousAttempts)
}

func TestActionTypeValid(t *testing.T) {
	for _, at := range []ActionType{
		ActionRetry,
		ActionAlternativeTool,
		ActionModifyParams,
		ActionManualIntervention,
		ActionEscalate,
		ActionRollback,
	} {
		assert.True(t, at.Valid(), "expected %q to be valid", at)
	}

	assert.False(t, ActionType("").Valid())
	assert.False(t, ActionType("reboot").Valid())
}
