package plan

import (
	"context"
	"sort"
	"time"

	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// Action is one concrete, parameterized recovery step bound to a single
// error occurrence. Actions are immutable once included in a plan; the
// learning loop only moves the catalog prior they were derived from.
type Action struct {
	// ID uniquely identifies this action instance.
	ID string `json:"id"`

	// Type is the recovery action type.
	Type types.ActionType `json:"type"`

	// Description is a short human summary of the step.
	Description string `json:"description"`

	// Instructions are the ordered steps to carry the action out.
	Instructions []string `json:"instructions,omitempty"`

	// EstimatedTime is the expected wall-clock cost of the action.
	EstimatedTime time.Duration `json:"estimated_time"`

	// SuccessProbability is the catalog prior at build time, adjusted
	// for this invocation (e.g. retry decay on repeated attempts).
	// Always in (0, 1].
	SuccessProbability float64 `json:"success_probability"`

	// Requirements are preconditions that must hold before executing.
	Requirements []string `json:"requirements,omitempty"`

	// Risks name what can go wrong when executing this action.
	Risks []string `json:"risks,omitempty"`

	// Parameters carries action-specific settings (retry delay, max
	// retries, target tool name, ...).
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Alternative is a substitute-tool suggestion supplied by the external
// recommendation collaborator. Entries included in a plan always satisfy
// the configured confidence threshold.
type Alternative struct {
	ToolName         string  `json:"tool_name"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning,omitempty"`
	EstimatedSuccess float64 `json:"estimated_success"`
	UserSpecific     bool    `json:"user_specific"`
}

// Metadata describes how a plan was produced.
type Metadata struct {
	// ProcessingTime is the end-to-end build duration. Always positive.
	ProcessingTime time.Duration `json:"processing_time"`

	// CacheHit is set when the explanation came from the
	// classification-fingerprint cache.
	CacheHit bool `json:"cache_hit"`
}

// Plan is the aggregate result of planning for one error occurrence.
// Built once, immutable, and never reused across occurrences (only
// composed explanation text is cached by classification fingerprint).
type Plan struct {
	ID             string                  `json:"id"`
	Classification classify.Classification `json:"classification"`

	// UserFriendlyExplanation is bounded prose for end users; source
	// error text is truncated before inclusion.
	UserFriendlyExplanation string `json:"user_friendly_explanation"`

	// TechnicalAnalysis is the engineer-facing account of the failure.
	TechnicalAnalysis string `json:"technical_analysis"`

	// Actions are sorted by success probability descending, ties broken
	// by ascending estimated time. Never empty.
	Actions []Action `json:"actions"`

	Alternatives []Alternative `json:"alternatives,omitempty"`
	Prevention   []string      `json:"prevention,omitempty"`

	// TotalEstimatedTime sums the estimated time of all actions.
	TotalEstimatedTime time.Duration `json:"total_estimated_time"`

	Metadata Metadata `json:"metadata"`
}

// Recommender is the narrow collaborator interface for alternative-tool
// recommendation. A failing recommender costs a plan its alternatives,
// nothing more.
type Recommender interface {
	Recommend(ctx context.Context, ectx types.Context) ([]Alternative, error)
}

// Explanation is the result shape produced by an external
// natural-language collaborator.
type Explanation struct {
	UserFriendlyMessage string   `json:"user_friendly_message"`
	TechnicalDetails    string   `json:"technical_details"`
	PossibleCauses      []string `json:"possible_causes,omitempty"`
	NextSteps           []string `json:"next_steps,omitempty"`
}

// Describer is the narrow collaborator interface for explanation text
// generation. Used purely for composition, never for control flow.
type Describer interface {
	GenerateExplanation(ctx context.Context, err error, ectx types.Context) (Explanation, error)
}

// FilterAlternatives keeps entries whose confidence meets the threshold,
// ordered by confidence descending.
func FilterAlternatives(alts []Alternative, threshold float64) []Alternative {
	out := make([]Alternative, 0, len(alts))
	for _, a := range alts {
		if a.Confidence >= threshold {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Truncate caps s at limit runes, appending an ellipsis when it cuts.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

// sortActions orders by success probability descending; equal
// probabilities are broken by ascending estimated time. The sort is
// stable so equal actions keep catalog order.
func sortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].SuccessProbability != actions[j].SuccessProbability {
			return actions[i].SuccessProbability > actions[j].SuccessProbability
		}
		return actions[i].EstimatedTime < actions[j].EstimatedTime
	})
}
