package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/recovery/analytics"
	"github.com/zero-day-ai/recovery/catalog"
	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/execute"
	"github.com/zero-day-ai/recovery/learn"
	"github.com/zero-day-ai/recovery/plan"
	"github.com/zero-day-ai/recovery/registry"
	"github.com/zero-day-ai/recovery/types"
)

// planIndexCap bounds how many plan-to-category mappings the engine
// remembers for LearnFromOutcome. Oldest entries are evicted first.
const planIndexCap = 1024

// Engine is the error recovery engine: it classifies failures, builds
// ranked recovery plans, executes actions, and folds outcomes back into
// the action priors. Safe for concurrent use.
type Engine struct {
	cfg         Config
	logger      *slog.Logger
	tracer      trace.Tracer
	classifier  *classify.Classifier
	catalog     *catalog.Catalog
	builder     *plan.Builder
	recommender plan.Recommender
	executor    *execute.Executor
	learner     *learn.Learner
	emitter     *analytics.Emitter
	plans       *planIndex

	closeOnce sync.Once
	closed    chan struct{}
}

// New wires an Engine from the configuration and options. The zero
// Config is valid and falls back to DefaultConfig values.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := o.tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("recovery")
	}

	classifierOpts := []classify.Option{classify.WithLogger(logger)}
	if len(o.rules) > 0 {
		classifierOpts = append(classifierOpts, classify.WithRules(o.rules...))
	}
	if o.analyzer != nil {
		classifierOpts = append(classifierOpts, classify.WithAnalyzer(o.analyzer))
	}
	classifier := classify.New(classifierOpts...)

	cat := catalog.New(o.priors, logger)

	recommender := o.recommender
	if recommender == nil && o.registry != nil {
		recommender = registry.NewRecommender(o.registry, logger)
	}

	builderOpts := []plan.BuilderOption{plan.WithLogger(logger)}
	if recommender != nil {
		builderOpts = append(builderOpts, plan.WithRecommender(recommender))
	}
	if o.describer != nil {
		builderOpts = append(builderOpts, plan.WithDescriber(o.describer))
	}
	builder := plan.NewBuilder(classifier, cat, plan.Config{
		MaxRetries:          cfg.Retry.MaxRetries,
		BaseDelay:           cfg.Retry.BaseDelay.Std(),
		MaxDelay:            cfg.Retry.MaxDelay.Std(),
		BackoffMultiplier:   cfg.Retry.BackoffMultiplier,
		ConfidenceThreshold: cfg.Recommendation.ConfidenceThreshold,
		CacheSize:           cfg.CacheSize,
	}, builderOpts...)

	executorOpts := []execute.Option{execute.WithLogger(logger)}
	if o.operation != nil {
		executorOpts = append(executorOpts, execute.WithOperation(o.operation))
	}
	if o.invoker != nil {
		executorOpts = append(executorOpts, execute.WithToolInvoker(o.invoker))
	}
	executor := execute.New(execute.Config{
		AttemptTimeout:    cfg.AttemptTimeout.Std(),
		MaxRetries:        cfg.Retry.MaxRetries,
		BaseDelay:         cfg.Retry.BaseDelay.Std(),
		MaxDelay:          cfg.Retry.MaxDelay.Std(),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}, executorOpts...)

	learner := learn.New(cat.Priors(), logger)

	var emitter *analytics.Emitter
	if cfg.EnableAnalytics {
		sinks := o.sinks
		if o.meter != nil {
			otelSink, err := analytics.NewOTelSink(o.meter)
			if err != nil {
				return nil, NewInternalError("New", fmt.Errorf("analytics instruments: %w", err))
			}
			sinks = append(sinks, otelSink)
		}
		if len(sinks) == 0 {
			sinks = []analytics.Sink{analytics.NewSlogSink(logger)}
		}
		emitter = analytics.NewEmitter(0, sinks...)
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		tracer:      tracer,
		classifier:  classifier,
		catalog:     cat,
		builder:     builder,
		recommender: recommender,
		executor:    executor,
		learner:     learner,
		emitter:     emitter,
		plans:       newPlanIndex(planIndexCap),
		closed:      make(chan struct{}),
	}, nil
}

// ClassifyError maps an error and its invocation context to a
// structured classification without building a plan.
func (e *Engine) ClassifyError(ctx context.Context, cause error, ectx types.Context) (classify.Classification, error) {
	if err := e.checkOpen(); err != nil {
		return classify.Classification{}, err
	}
	ctx, span := e.tracer.Start(ctx, "recovery.ClassifyError")
	defer span.End()

	cls, err := e.classifier.Classify(ctx, cause, ectx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification rejected input")
		return classify.Classification{}, invalidInput("Engine.ClassifyError", err)
	}

	span.SetAttributes(
		attribute.String("error.category", string(cls.Category)),
		attribute.String("error.severity", string(cls.Severity)),
		attribute.Float64("error.confidence", cls.Confidence),
	)
	e.emit(analytics.EventErrorClassified, map[string]any{
		"tool":             ectx.Tool,
		"operation":        ectx.Operation,
		"category":         string(cls.Category),
		"severity":         string(cls.Severity),
		"confidence":       cls.Confidence,
		"confidence_level": e.ConfidenceLabel(cls.Confidence),
		"source":           string(cls.Source),
	})
	return cls, nil
}

// GenerateRecoveryPlan builds a complete recovery plan for one error
// occurrence, bounded by the configured plan timeout.
func (e *Engine) GenerateRecoveryPlan(ctx context.Context, cause error, ectx types.Context) (*plan.Plan, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "recovery.GenerateRecoveryPlan")
	defer span.End()

	if e.cfg.PlanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PlanTimeout.Std())
		defer cancel()
	}

	p, err := e.builder.Build(ctx, cause, ectx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan build rejected input")
		return nil, invalidInput("Engine.GenerateRecoveryPlan", err)
	}

	e.plans.put(p.ID, p.Classification.Category)

	// Plan building classifies internally, so the classification event
	// fires here too for callers that never call ClassifyError directly.
	e.emit(analytics.EventErrorClassified, map[string]any{
		"tool":             ectx.Tool,
		"operation":        ectx.Operation,
		"category":         string(p.Classification.Category),
		"severity":         string(p.Classification.Severity),
		"confidence":       p.Classification.Confidence,
		"confidence_level": e.ConfidenceLabel(p.Classification.Confidence),
		"source":           string(p.Classification.Source),
	})

	span.SetAttributes(
		attribute.String("plan.id", p.ID),
		attribute.String("error.category", string(p.Classification.Category)),
		attribute.Int("plan.actions", len(p.Actions)),
		attribute.Int("plan.alternatives", len(p.Alternatives)),
		attribute.Bool("plan.cache_hit", p.Metadata.CacheHit),
	)
	e.emit(analytics.EventPlanGenerated, map[string]any{
		"plan_id":       p.ID,
		"tool":          ectx.Tool,
		"category":      string(p.Classification.Category),
		"actions":       len(p.Actions),
		"alternatives":  len(p.Alternatives),
		"cache_hit":     p.Metadata.CacheHit,
		"processing_ms": float64(p.Metadata.ProcessingTime) / float64(time.Millisecond),
	})
	if len(p.Alternatives) > 0 {
		e.emit(analytics.EventAlternativesFound, map[string]any{
			"plan_id": p.ID,
			"tool":    ectx.Tool,
			"count":   len(p.Alternatives),
			"top":     p.Alternatives[0].ToolName,
		})
	}
	return p, nil
}

// ExecuteRecoveryAction runs one action from a plan through the
// configured hooks. Execution failures are reported in the Result; the
// error return covers invalid actions and missing hooks.
func (e *Engine) ExecuteRecoveryAction(ctx context.Context, action plan.Action, ectx types.Context) (execute.Result, error) {
	if err := e.checkOpen(); err != nil {
		return execute.Result{}, err
	}
	ctx, span := e.tracer.Start(ctx, "recovery.ExecuteRecoveryAction")
	defer span.End()

	res, err := e.executor.Execute(ctx, action, ectx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "action rejected")
		return res, NewExecutionError("Engine.ExecuteRecoveryAction", err)
	}

	span.SetAttributes(
		attribute.String("action.id", action.ID),
		attribute.String("action.type", string(action.Type)),
		attribute.Bool("action.success", res.Success),
		attribute.Bool("action.deferred", res.Deferred),
		attribute.Int("action.attempts", res.Attempts),
	)
	e.emit(analytics.EventActionExecuted, map[string]any{
		"action_id":    action.ID,
		"type":         string(action.Type),
		"success":      res.Success,
		"deferred":     res.Deferred,
		"attempts":     res.Attempts,
		"execution_ms": float64(res.ExecutionTime) / float64(time.Millisecond),
	})
	return res, nil
}

// AlternativeOption tweaks a single GetAlternativeTools call.
type AlternativeOption func(*alternativeQuery)

type alternativeQuery struct {
	minConfidence float64
}

// WithMinConfidence overrides the configured confidence threshold for
// one query.
func WithMinConfidence(threshold float64) AlternativeOption {
	return func(q *alternativeQuery) { q.minConfidence = threshold }
}

// GetAlternativeTools returns substitute tools for the failing one,
// filtered by confidence. Without a recommendation source the result is
// empty, not an error.
func (e *Engine) GetAlternativeTools(ctx context.Context, ectx types.Context, opts ...AlternativeOption) ([]plan.Alternative, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "recovery.GetAlternativeTools")
	defer span.End()

	if err := ectx.Validate(); err != nil {
		span.RecordError(err)
		return nil, invalidInput("Engine.GetAlternativeTools", err)
	}

	q := alternativeQuery{minConfidence: e.cfg.Recommendation.ConfidenceThreshold}
	for _, opt := range opts {
		opt(&q)
	}

	if e.recommender == nil {
		return nil, nil
	}

	alts, err := e.recommender.Recommend(ctx, ectx)
	if err != nil {
		e.logger.Warn("alternative tool recommendation failed",
			"tool", ectx.Tool,
			"error", err)
		return nil, nil
	}
	alts = plan.FilterAlternatives(alts, q.minConfidence)

	span.SetAttributes(attribute.Int("alternatives.count", len(alts)))
	if len(alts) > 0 {
		e.emit(analytics.EventAlternativesFound, map[string]any{
			"tool":  ectx.Tool,
			"count": len(alts),
			"top":   alts[0].ToolName,
		})
	}
	return alts, nil
}

// LearnFromOutcome folds the outcome of an executed action back into
// the priors, keyed by the category of the plan it came from. Outcomes
// for plans the engine no longer remembers learn against the unknown
// category rather than being lost.
func (e *Engine) LearnFromOutcome(ctx context.Context, planID string, action types.ActionType, outcome learn.Outcome) (learn.Result, error) {
	if err := e.checkOpen(); err != nil {
		return learn.Result{}, err
	}
	ctx, span := e.tracer.Start(ctx, "recovery.LearnFromOutcome")
	defer span.End()

	category, ok := e.plans.get(planID)
	if !ok {
		e.logger.Warn("outcome for unknown plan, learning against unknown category",
			"plan_id", planID,
			"action", action)
		category = classify.CategoryUnknown
	}

	res, err := e.learner.Record(ctx, action, category, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "outcome rejected")
		return learn.Result{}, invalidInput("Engine.LearnFromOutcome", err)
	}

	payload := map[string]any{
		"plan_id":  planID,
		"action":   string(action),
		"category": string(category),
		"success":  outcome.Success,
		"applied":  res.LearningApplied,
	}
	if len(res.Updates) > 0 {
		payload["adjustment"] = res.Updates[0].Adjustment
		payload["new_prior"] = res.Updates[0].NewPrior
	}
	e.emit(analytics.EventLearningApplied, payload)
	return res, nil
}

// ConfidenceLabel maps a confidence value onto the configured coarse
// levels.
func (e *Engine) ConfidenceLabel(confidence float64) string {
	switch {
	case confidence >= e.cfg.Thresholds.High:
		return "high"
	case confidence >= e.cfg.Thresholds.Medium:
		return "medium"
	case confidence >= e.cfg.Thresholds.Low:
		return "low"
	default:
		return "very_low"
	}
}

// Priors exposes the prior store, mainly for inspection and seeding.
func (e *Engine) Priors() catalog.PriorStore {
	return e.catalog.Priors()
}

// Close flushes analytics and rejects further operations. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		if e.emitter != nil {
			e.emitter.Close()
		}
	})
	return nil
}

func (e *Engine) checkOpen() error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
		return nil
	}
}

func (e *Engine) emit(typ analytics.EventType, payload map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(analytics.Event{Type: typ, Payload: payload})
}

func invalidInput(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
}

// planIndex is a bounded FIFO map from plan ID to error category.
type planIndex struct {
	mu      sync.Mutex
	cap     int
	entries map[string]classify.Category
	order   []string
}

func newPlanIndex(capacity int) *planIndex {
	return &planIndex{
		cap:     capacity,
		entries: make(map[string]classify.Category, capacity),
	}
}

func (p *planIndex) put(id string, category classify.Category) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; ok {
		p.entries[id] = category
		return
	}
	if len(p.order) >= p.cap {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.entries, oldest)
	}
	p.entries[id] = category
	p.order = append(p.order, id)
}

func (p *planIndex) get(id string) (classify.Category, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	category, ok := p.entries[id]
	return category, ok
}
