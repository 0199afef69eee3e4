package classify

// Category groups errors by their nature so the catalog can select
// applicable recovery actions.
type Category string

const (
	// CategoryNetwork covers connectivity failures: timeouts on the wire,
	// refused or reset connections, DNS resolution failures.
	CategoryNetwork Category = "network"

	// CategoryValidation covers bad input: malformed parameters, schema
	// violations, missing required fields.
	CategoryValidation Category = "validation"

	// CategorySystem covers resource and runtime failures: out of memory,
	// disk full, panics.
	CategorySystem Category = "system"

	// CategoryAuthorization covers authentication and permission failures.
	CategoryAuthorization Category = "authorization"

	// CategoryTimeout covers deadline expiry on the operation itself,
	// as opposed to network-level timeouts.
	CategoryTimeout Category = "timeout"

	// CategoryRateLimit covers throttling by an upstream service.
	CategoryRateLimit Category = "rate_limit"

	// CategoryNotFound covers missing resources and unknown endpoints.
	CategoryNotFound Category = "not_found"

	// CategoryUnknown is the explicit fallback when no rule matches.
	CategoryUnknown Category = "unknown"
)

// Severity ranks how damaging an error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Source records which path produced a classification.
type Source string

const (
	// SourceLocal means the local rule table alone produced the result.
	SourceLocal Source = "local"

	// SourceExternal means the external analyzer's result replaced the
	// local one because it carried higher confidence.
	SourceExternal Source = "external"

	// SourceMerged means the external analysis agreed with the local
	// category and the two were combined.
	SourceMerged Source = "merged"
)

// Classification is the structured, immutable result of classifying one
// error occurrence. A fresh value is produced per call; it is never
// mutated afterwards.
type Classification struct {
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`

	// Retryable indicates the same operation may succeed if re-run.
	Retryable bool `json:"retryable"`

	// RequiresUserAction indicates the caller must change something
	// (input, credentials) before any retry can succeed.
	RequiresUserAction bool `json:"requires_user_action"`

	// RequiresEscalation indicates an operator must be involved.
	RequiresEscalation bool `json:"requires_escalation"`

	// MatchedPatterns lists the rule names that produced this result.
	MatchedPatterns []string `json:"matched_patterns,omitempty"`

	// Source records whether the local rules, the external analyzer, or
	// a merge of both produced this classification.
	Source Source `json:"source"`
}

// flagsFor returns the default flag set for a category. Used when the
// external analyzer supplies a category the local rules did not match,
// so the flags stay consistent with the category's meaning.
func flagsFor(cat Category) (retryable, userAction, escalation bool) {
	switch cat {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit:
		return true, false, false
	case CategoryValidation, CategoryNotFound:
		return false, true, false
	case CategoryAuthorization:
		return false, true, false
	case CategorySystem:
		return false, false, true
	default:
		return false, false, false
	}
}

// fallback is the explicit unknown classification emitted when no rule
// matches. Low confidence, medium severity, nothing assumed.
func fallback() Classification {
	return Classification{
		Category:   CategoryUnknown,
		Severity:   SeverityMedium,
		Confidence: 0.3,
		Source:     SourceLocal,
	}
}
