package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/recovery/catalog"
	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// ErrNilError is returned when Build is invoked without an error to
// plan for.
var ErrNilError = errors.New("plan: nil error")

const (
	// retryDecayBase shrinks a retry action's success probability for
	// every attempt that already failed.
	retryDecayBase = 0.75

	// minActionProbability keeps decayed probabilities strictly positive.
	minActionProbability = 0.05
)

// Config tunes plan building. The zero value is usable; withDefaults
// fills every unset field.
type Config struct {
	// MaxRetries is stamped into retry action parameters when the
	// template does not set its own limit.
	MaxRetries int

	// BaseDelay is the retry delay used when a template carries none.
	BaseDelay time.Duration

	// MaxDelay caps the attempt-scaled retry delay.
	MaxDelay time.Duration

	// BackoffMultiplier scales the retry delay per previous attempt.
	BackoffMultiplier float64

	// ConfidenceThreshold filters alternative-tool recommendations.
	ConfidenceThreshold float64

	// MessageLimit caps how much raw error text enters the technical
	// analysis.
	MessageLimit int

	// ExplanationLimit caps the composed explanation strings.
	ExplanationLimit int

	// CacheSize is the explanation cache capacity. Zero means the
	// default of 256 entries; negative disables caching.
	CacheSize int
}

func (c Config) withDefaults() Config {
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
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = 512
	}
	if c.ExplanationLimit <= 0 {
		c.ExplanationLimit = 999
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	return c
}

// Builder turns a failed operation into a recovery plan.
type Builder struct {
	classifier  *classify.Classifier
	catalog     *catalog.Catalog
	recommender Recommender
	describer   Describer
	cfg         Config
	cache       *explanationCache
	logger      *slog.Logger
}

// BuilderOption configures optional collaborators.
type BuilderOption func(*Builder)

// WithRecommender attaches an alternative-tool recommendation source.
func WithRecommender(r Recommender) BuilderOption {
	return func(b *Builder) { b.recommender = r }
}

// WithDescriber attaches an explanation generator.
func WithDescriber(d Describer) BuilderOption {
	return func(b *Builder) { b.describer = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder constructs a Builder. Nil classifier or catalog fall back
// to defaults so a zero-configuration builder still plans.
func NewBuilder(cl *classify.Classifier, cat *catalog.Catalog, cfg Config, opts ...BuilderOption) *Builder {
	if cl == nil {
		cl = classify.New()
	}
	if cat == nil {
		cat = catalog.New(nil, nil)
	}
	b := &Builder{
		classifier: cl,
		catalog:    cat,
		cfg:        cfg.withDefaults(),
		logger:     slog.Default(),
	}
	b.cache = newExplanationCache(b.cfg.CacheSize)
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Build produces a recovery plan for one error occurrence.
//
// Inputs are validated before any work. After validation Build cannot
// fail on collaborator errors: a failing recommender costs the plan its
// alternatives, a failing describer costs the generated wording, and a
// classifier failure plans on the unknown category.
func (b *Builder) Build(ctx context.Context, cause error, ectx types.Context) (*Plan, error) {
	start := time.Now()

	if cause == nil {
		return nil, ErrNilError
	}
	if err := ectx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid error context: %w", err)
	}

	cls, err := b.classifier.Classify(ctx, cause, ectx)
	if err != nil {
		b.logger.Warn("classification failed, planning on unknown category",
			"tool", ectx.Tool,
			"operation", ectx.Operation,
			"error", err)
		cls = classify.Classification{
			Category:   classify.CategoryUnknown,
			Severity:   classify.SeverityMedium,
			Confidence: 0.3,
			Source:     classify.SourceLocal,
		}
	}

	alternatives := b.alternatives(ctx, ectx)
	actions := b.instantiate(ctx, cls, ectx, alternatives)
	sortActions(actions)

	userMsg, cacheHit := b.userExplanation(ctx, cause, cls, ectx)

	var total time.Duration
	for _, a := range actions {
		total += a.EstimatedTime
	}

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}

	p := &Plan{
		ID:                      uuid.NewString(),
		Classification:          cls,
		UserFriendlyExplanation: userMsg,
		TechnicalAnalysis:       b.technical(cause, cls, ectx),
		Actions:                 actions,
		Alternatives:            alternatives,
		Prevention:              preventionFor(cls.Category),
		TotalEstimatedTime:      total,
		Metadata: Metadata{
			ProcessingTime: elapsed,
			CacheHit:       cacheHit,
		},
	}

	b.logger.Debug("recovery plan built",
		"plan_id", p.ID,
		"category", cls.Category,
		"actions", len(actions),
		"alternatives", len(alternatives),
		"cache_hit", cacheHit,
		"processing_time", elapsed)
	return p, nil
}

func (b *Builder) alternatives(ctx context.Context, ectx types.Context) []Alternative {
	if b.recommender == nil {
		return nil
	}
	recs, err := b.recommender.Recommend(ctx, ectx)
	if err != nil {
		b.logger.Warn("alternative tool recommendation failed",
			"tool", ectx.Tool,
			"error", err)
		return nil
	}
	return FilterAlternatives(recs, b.cfg.ConfidenceThreshold)
}

// instantiate turns catalog templates into concrete actions bound to
// this occurrence.
func (b *Builder) instantiate(ctx context.Context, cls classify.Classification, ectx types.Context, alts []Alternative) []Action {
	templates := b.catalog.TemplatesFor(ctx, cls)
	actions := make([]Action, 0, len(templates))
	for _, tmpl := range templates {
		a := Action{
			ID:                 uuid.NewString(),
			Type:               tmpl.Type,
			Description:        tmpl.Description,
			Instructions:       append([]string(nil), tmpl.Instructions...),
			EstimatedTime:      tmpl.EstimatedTime,
			SuccessProbability: tmpl.Probability,
			Requirements:       append([]string(nil), tmpl.Requirements...),
			Risks:              append([]string(nil), tmpl.Risks...),
			Parameters:         cloneParams(tmpl.Parameters),
		}
		switch a.Type {
		case types.ActionRetry:
			b.tuneRetry(&a, ectx)
		case types.ActionAlternativeTool:
			if len(alts) > 0 {
				if a.Parameters == nil {
					a.Parameters = make(map[string]any, 1)
				}
				a.Parameters["tool"] = alts[0].ToolName
			}
		}
		actions = append(actions, a)
	}
	return actions
}

// tuneRetry scales the retry delay by the backoff multiplier for every
// attempt that already failed, capped at MaxDelay, and decays the
// success probability accordingly.
func (b *Builder) tuneRetry(a *Action, ectx types.Context) {
	delay := b.cfg.BaseDelay
	if d, ok := a.Parameters["delay"].(time.Duration); ok && d > 0 {
		delay = d
	}
	for i := 0; i < ectx.PreviousAttempts; i++ {
		delay = time.Duration(float64(delay) * b.cfg.BackoffMultiplier)
		if delay >= b.cfg.MaxDelay {
			delay = b.cfg.MaxDelay
			break
		}
	}

	if a.Parameters == nil {
		a.Parameters = make(map[string]any, 2)
	}
	a.Parameters["delay"] = delay
	if _, ok := a.Parameters["max_retries"]; !ok {
		a.Parameters["max_retries"] = b.cfg.MaxRetries
	}

	if ectx.PreviousAttempts > 0 {
		p := a.SuccessProbability * math.Pow(retryDecayBase, float64(ectx.PreviousAttempts))
		if p < minActionProbability {
			p = minActionProbability
		}
		a.SuccessProbability = p
	}
}

// userExplanation returns the user-facing message for this occurrence,
// reusing cached wording for matching fingerprints. The raw error text
// never enters the user message, which is what makes the cache safe.
func (b *Builder) userExplanation(ctx context.Context, cause error, cls classify.Classification, ectx types.Context) (string, bool) {
	fp := fingerprint(cls, ectx)
	if text, ok := b.cache.get(fp); ok {
		return text, true
	}

	var text string
	if b.describer != nil {
		expl, err := b.describer.GenerateExplanation(ctx, cause, ectx)
		if err != nil {
			b.logger.Warn("explanation generation failed, composing locally",
				"tool", ectx.Tool,
				"error", err)
		} else {
			text = expl.UserFriendlyMessage
		}
	}
	if text == "" {
		text = userMessage(cls, ectx)
	}
	text = Truncate(text, b.cfg.ExplanationLimit)
	b.cache.put(fp, text)
	return text, false
}

// technical composes the engineer-facing analysis. Raw error text is
// truncated before inclusion so oversized messages cannot bloat plans.
func (b *Builder) technical(cause error, cls classify.Classification, ectx types.Context) string {
	msg := Truncate(cause.Error(), b.cfg.MessageLimit)
	s := fmt.Sprintf("operation %q on tool %q failed (category=%s severity=%s confidence=%.2f, previous attempts: %d): %s",
		ectx.Operation, ectx.Tool,
		cls.Category, cls.Severity, cls.Confidence,
		ectx.PreviousAttempts, msg)
	return Truncate(s, b.cfg.ExplanationLimit)
}

func userMessage(cls classify.Classification, ectx types.Context) string {
	tool := ectx.Tool
	switch cls.Category {
	case classify.CategoryNetwork:
		return fmt.Sprintf("The %s tool could not reach its service. This is usually temporary; retrying after a short wait often resolves it.", tool)
	case classify.CategoryTimeout:
		return fmt.Sprintf("The %s operation took longer than allowed and was stopped. Retrying with more time or a smaller request usually helps.", ectx.Operation)
	case classify.CategoryRateLimit:
		return fmt.Sprintf("The service behind %s is limiting how often it can be called. Waiting a little before trying again should resolve this.", tool)
	case classify.CategoryValidation:
		return fmt.Sprintf("Some of the input given to %s was not accepted. Please review the highlighted parameters and try again.", tool)
	case classify.CategoryAuthorization:
		return fmt.Sprintf("You do not currently have access to perform this action with %s. Signing in again or requesting access should resolve it.", tool)
	case classify.CategorySystem:
		return fmt.Sprintf("The system running %s hit a resource problem. An operator has the steps needed to restore it.", tool)
	case classify.CategoryNotFound:
		return fmt.Sprintf("The item %s was looking for could not be found. Double-check the name or identifier used.", tool)
	default:
		return fmt.Sprintf("Something went wrong while running %s. A retry may help; if it keeps failing, the suggested steps below walk through what to check.", tool)
	}
}

func preventionFor(cat classify.Category) []string {
	switch cat {
	case classify.CategoryNetwork:
		return []string{
			"Add retries with jitter to the calling path",
			"Monitor upstream availability and fail over early",
		}
	case classify.CategoryTimeout:
		return []string{
			"Set timeouts from observed latency percentiles",
			"Split large requests into smaller batches",
		}
	case classify.CategoryRateLimit:
		return []string{
			"Spread request bursts over time",
			"Request a quota increase for sustained load",
		}
	case classify.CategoryValidation:
		return []string{
			"Validate parameters against the operation schema before invoking",
		}
	case classify.CategoryAuthorization:
		return []string{
			"Refresh credentials ahead of expiry",
			"Audit granted scopes against the operations in use",
		}
	case classify.CategorySystem:
		return []string{
			"Alert on resource saturation before exhaustion",
		}
	case classify.CategoryNotFound:
		return []string{
			"Verify resource identifiers at input time",
		}
	default:
		return []string{
			"Capture richer context on failures to improve future classification",
		}
	}
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
