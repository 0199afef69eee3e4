package types

// ActionType enumerates the kinds of recovery actions the engine can plan.
type ActionType string

const (
	// ActionRetry re-runs the failed operation, usually with backoff.
	ActionRetry ActionType = "retry"

	// ActionAlternativeTool invokes a substitute tool for the failed one.
	ActionAlternativeTool ActionType = "alternative_tool"

	// ActionModifyParams suggests re-running with adjusted parameters.
	ActionModifyParams ActionType = "modify_params"

	// ActionManualIntervention requires a human to act before retrying.
	ActionManualIntervention ActionType = "manual_intervention"

	// ActionEscalate hands the failure to an operator or support channel.
	ActionEscalate ActionType = "escalate"

	// ActionRollback reverts partially applied effects of the operation.
	ActionRollback ActionType = "rollback"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionRetry, ActionAlternativeTool, ActionModifyParams,
		ActionManualIntervention, ActionEscalate, ActionRollback:
		return true
	}
	return false
}
