package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/recovery/types"
)

// Analysis is the result shape produced by an external error-intelligence
// collaborator. Confidence decides whether it overrides the local match.
type Analysis struct {
	Category         Category `json:"category"`
	Severity         Severity `json:"severity"`
	Confidence       float64  `json:"confidence"`
	Patterns         []string `json:"patterns,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// Analyzer is the narrow collaborator interface for external error
// intelligence. Implementations may call out to a remote service; the
// classifier treats any returned error as a soft failure and falls back
// to its local rules.
type Analyzer interface {
	AnalyzeError(ctx context.Context, err error, ectx types.Context) (Analysis, error)
}

// ErrNilError is returned when Classify is handed a nil error value.
var ErrNilError = errors.New("classify: nil error")

// Classifier evaluates the ordered rule table against an error, with an
// optional external analyzer merged in. The zero value is not usable;
// construct with New.
type Classifier struct {
	rules    []Rule
	analyzer Analyzer
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithAnalyzer attaches an external error-intelligence collaborator.
func WithAnalyzer(a Analyzer) Option {
	return func(c *Classifier) { c.analyzer = a }
}

// WithRules prepends caller-supplied rules ahead of the built-in table.
// Custom rules therefore win ties against the defaults.
func WithRules(rules ...Rule) Option {
	return func(c *Classifier) { c.rules = append(rules, c.rules...) }
}

// WithLogger sets the logger used for degraded-path warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New builds a Classifier with the built-in rule table and any options.
func New(opts ...Option) *Classifier {
	c := &Classifier{rules: builtinRules()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Classify maps err and its invocation context to a Classification.
//
// It returns an error only for invalid input (nil err, context missing
// required fields). Rule misses are not failures: the explicit unknown
// fallback is returned instead. Analyzer failures degrade to the local
// rule match. The pure-local path is deterministic: identical input
// yields an identical classification.
func (c *Classifier) Classify(ctx context.Context, err error, ectx types.Context) (Classification, error) {
	if err == nil {
		return Classification{}, ErrNilError
	}
	if verr := ectx.Validate(); verr != nil {
		return Classification{}, fmt.Errorf("classify: invalid context: %w", verr)
	}

	local := c.local(err, ectx)

	if c.analyzer == nil {
		return local, nil
	}

	analysis, aerr := c.analyzer.AnalyzeError(ctx, err, ectx)
	if aerr != nil {
		c.logger.Warn("error analyzer unavailable, using local classification",
			"tool", ectx.Tool,
			"category", local.Category,
			"error", aerr)
		return local, nil
	}

	return merge(local, analysis), nil
}

// Repeated failures of the same operation erode confidence that a
// retryable match is really transient.
const (
	attemptDecayStep  = 0.1
	attemptDecayFloor = 0.3
	attemptDecayOnset = 2
)

// local runs the rule table in order; first match wins.
func (c *Classifier) local(err error, ectx types.Context) Classification {
	for _, rule := range c.rules {
		if rule.Match == nil || !rule.Match(err, ectx) {
			continue
		}
		result := rule.Result
		result.MatchedPatterns = []string{rule.Name}
		result.Source = SourceLocal
		return tuneForAttempts(result, ectx.PreviousAttempts)
	}
	return fallback()
}

// tuneForAttempts lowers confidence on retryable classifications once
// the operation has already been attempted repeatedly. Non-retryable
// categories are unaffected.
func tuneForAttempts(cls Classification, attempts int) Classification {
	if !cls.Retryable || attempts < attemptDecayOnset {
		return cls
	}
	cls.Confidence -= attemptDecayStep * float64(attempts-1)
	if cls.Confidence < attemptDecayFloor {
		cls.Confidence = attemptDecayFloor
	}
	return cls
}

// merge combines the local match with an external analysis, preferring
// the higher-confidence source. When the external side wins with a
// different category, flags are rederived from that category so they
// stay semantically consistent.
func merge(local Classification, analysis Analysis) Classification {
	if analysis.Confidence <= local.Confidence || analysis.Category == "" {
		if len(analysis.Patterns) > 0 {
			local.MatchedPatterns = appendUnique(local.MatchedPatterns, analysis.Patterns...)
			local.Source = SourceMerged
		}
		return local
	}

	result := Classification{
		Category:        analysis.Category,
		Severity:        analysis.Severity,
		Confidence:      analysis.Confidence,
		MatchedPatterns: appendUnique(local.MatchedPatterns, analysis.Patterns...),
		Source:          SourceExternal,
	}
	if result.Severity == "" {
		result.Severity = local.Severity
	}
	if analysis.Category == local.Category {
		result.Retryable = local.Retryable
		result.RequiresUserAction = local.RequiresUserAction
		result.RequiresEscalation = local.RequiresEscalation
		result.Source = SourceMerged
	} else {
		result.Retryable, result.RequiresUserAction, result.RequiresEscalation = flagsFor(analysis.Category)
	}
	return result
}

func appendUnique(dst []string, src ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
