package recovery

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/recovery/analytics"
	"github.com/zero-day-ai/recovery/catalog"
	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/execute"
	"github.com/zero-day-ai/recovery/plan"
	"github.com/zero-day-ai/recovery/registry"
)

// Option configures an Engine at construction time.
type Option func(*engineOptions)

// engineOptions collects everything injectable before wiring.
type engineOptions struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	sinks       []analytics.Sink
	analyzer    classify.Analyzer
	rules       []classify.Rule
	recommender plan.Recommender
	describer   plan.Describer
	priors      catalog.PriorStore
	operation   execute.Operation
	invoker     execute.ToolInvoker
	registry    registry.Registry
}

// WithLogger sets the structured logger used across the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithTracer enables OpenTelemetry spans around engine operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = tracer }
}

// WithMeter enables OpenTelemetry metrics; an analytics sink backed by
// this meter is added automatically when analytics are enabled.
func WithMeter(meter metric.Meter) Option {
	return func(o *engineOptions) { o.meter = meter }
}

// WithAnalyticsSink adds a sink for engine events. May be given more
// than once.
func WithAnalyticsSink(sink analytics.Sink) Option {
	return func(o *engineOptions) { o.sinks = append(o.sinks, sink) }
}

// WithAnalyzer attaches an external error-intelligence collaborator to
// the classifier.
func WithAnalyzer(a classify.Analyzer) Option {
	return func(o *engineOptions) { o.analyzer = a }
}

// WithRules prepends caller-defined classification rules ahead of the
// built-in table.
func WithRules(rules ...classify.Rule) Option {
	return func(o *engineOptions) { o.rules = append(o.rules, rules...) }
}

// WithRecommender attaches an alternative-tool recommendation source.
// Takes precedence over WithRegistry.
func WithRecommender(r plan.Recommender) Option {
	return func(o *engineOptions) { o.recommender = r }
}

// WithRegistry derives recommendations from a tool registry.
func WithRegistry(reg registry.Registry) Option {
	return func(o *engineOptions) { o.registry = reg }
}

// WithDescriber attaches an explanation generator for plan text.
func WithDescriber(d plan.Describer) Option {
	return func(o *engineOptions) { o.describer = d }
}

// WithPriors sets the store backing action success priors, shared by
// the catalog and the learner. Defaults to in-memory.
func WithPriors(store catalog.PriorStore) Option {
	return func(o *engineOptions) { o.priors = store }
}

// WithOperation attaches the hook that re-runs the failed operation,
// required for executing retry actions.
func WithOperation(op execute.Operation) Option {
	return func(o *engineOptions) { o.operation = op }
}

// WithToolInvoker attaches the hook that runs alternative tools.
func WithToolInvoker(inv execute.ToolInvoker) Option {
	return func(o *engineOptions) { o.invoker = inv }
}
