package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zero-day-ai/recovery/analytics"
	"github.com/zero-day-ai/recovery/catalog"
	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/learn"
	"github.com/zero-day-ai/recovery/plan"
	"github.com/zero-day-ai/recovery/registry"
	"github.com/zero-day-ai/recovery/types"
)

func testContext() types.Context {
	return types.Context{
		Tool:      "http-fetch",
		Operation: "get",
		Timestamp: time.Now(),
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recommendation.ConfidenceThreshold = 1.5

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClassifyError(t *testing.T) {
	e := newTestEngine(t, Config{})

	cls, err := e.ClassifyError(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	assert.Equal(t, classify.CategoryNetwork, cls.Category)
	assert.True(t, cls.Retryable)
}

func TestClassifyErrorInvalidInput(t *testing.T) {
	e := newTestEngine(t, Config{})
	ctx := context.Background()

	_, err := e.ClassifyError(ctx, nil, testContext())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.ClassifyError(ctx, errors.New("boom"), types.Context{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, types.ErrMissingField)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindValidation, rerr.Kind)
}

func TestGenerateRecoveryPlan(t *testing.T) {
	e := newTestEngine(t, Config{})

	p, err := e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, classify.CategoryNetwork, p.Classification.Category)
	require.NotEmpty(t, p.Actions)
	assert.Greater(t, p.Metadata.ProcessingTime, time.Duration(0))
}

func TestGenerateRecoveryPlanUnknownError(t *testing.T) {
	e := newTestEngine(t, Config{})

	p, err := e.GenerateRecoveryPlan(context.Background(), errors.New("zorp"), testContext())
	require.NoError(t, err)

	assert.Equal(t, classify.CategoryUnknown, p.Classification.Category)
	assert.NotEmpty(t, p.Actions)
}

func TestGenerateRecoveryPlanOversizedMessage(t *testing.T) {
	e := newTestEngine(t, Config{})
	huge := errors.New(strings.Repeat("x", 10000))

	p, err := e.GenerateRecoveryPlan(context.Background(), huge, testContext())
	require.NoError(t, err)

	assert.Less(t, len([]rune(p.UserFriendlyExplanation)), 1000)
	assert.Less(t, len([]rune(p.TechnicalAnalysis)), 1000)
}

func TestGetAlternativeTools(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	for _, name := range []string{"wget", "httpie"} {
		require.NoError(t, reg.Register(ctx, registry.ToolInfo{
			Name:         name,
			InstanceID:   name + "-1",
			Capabilities: []string{"get"},
		}))
	}

	e := newTestEngine(t, Config{}, WithRegistry(reg))

	alts, err := e.GetAlternativeTools(ctx, testContext())
	require.NoError(t, err)
	assert.Len(t, alts, 2)

	// A per-call threshold can filter everything out.
	alts, err = e.GetAlternativeTools(ctx, testContext(), WithMinConfidence(0.99))
	require.NoError(t, err)
	assert.Empty(t, alts)
}

func TestGetAlternativeToolsWithoutSource(t *testing.T) {
	e := newTestEngine(t, Config{})

	alts, err := e.GetAlternativeTools(context.Background(), testContext())
	require.NoError(t, err)
	assert.Empty(t, alts)
}

type fixedRecommender struct {
	alts []plan.Alternative
}

func (f fixedRecommender) Recommend(context.Context, types.Context) ([]plan.Alternative, error) {
	return f.alts, nil
}

func TestAlternativeFiltering(t *testing.T) {
	rec := fixedRecommender{alts: []plan.Alternative{
		{ToolName: "a", Confidence: 0.9},
		{ToolName: "b", Confidence: 0.3},
		{ToolName: "c", Confidence: 0.6},
	}}
	cfg := Config{}
	cfg.Recommendation.ConfidenceThreshold = 0.5
	e := newTestEngine(t, cfg, WithRecommender(rec))

	alts, err := e.GetAlternativeTools(context.Background(), testContext())
	require.NoError(t, err)
	require.Len(t, alts, 2)
	assert.Equal(t, "a", alts[0].ToolName)
	assert.Equal(t, "c", alts[1].ToolName)
}

func TestExecuteRecoveryAction(t *testing.T) {
	var calls int
	op := func(context.Context, types.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}
	cfg := Config{}
	cfg.Retry.BaseDelay = Duration(time.Millisecond)
	cfg.Retry.MaxDelay = Duration(5 * time.Millisecond)
	e := newTestEngine(t, cfg, WithOperation(op))

	p, err := e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	var retry plan.Action
	for _, a := range p.Actions {
		if a.Type == types.ActionRetry {
			retry = a
		}
	}
	require.NotEmpty(t, retry.ID)
	retry.Parameters["delay"] = time.Millisecond // keep the test fast

	res, err := e.ExecuteRecoveryAction(context.Background(), retry, testContext())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecuteRecoveryActionMissingHook(t *testing.T) {
	e := newTestEngine(t, Config{})

	action := plan.Action{ID: "a", Type: types.ActionRetry}
	_, err := e.ExecuteRecoveryAction(context.Background(), action, testContext())
	require.Error(t, err)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindExecution, rerr.Kind)
}

func TestLearnFromOutcome(t *testing.T) {
	store := catalog.NewMemoryPriors()
	e := newTestEngine(t, Config{}, WithPriors(store))
	ctx := context.Background()

	p, err := e.GenerateRecoveryPlan(ctx, errors.New("connection refused"), testContext())
	require.NoError(t, err)

	key := catalog.Key{Action: types.ActionRetry, Category: classify.CategoryNetwork}
	before := catalog.DefaultPriors()[key]

	res, err := e.LearnFromOutcome(ctx, p.ID, types.ActionRetry,
		learn.Outcome{Success: true, EffectivenessRating: 4})
	require.NoError(t, err)

	assert.True(t, res.LearningApplied)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, classify.CategoryNetwork, res.Updates[0].Category)
	assert.Greater(t, res.Updates[0].NewPrior, before)

	// The next plan for the same category sees the raised prior.
	p2, err := e.GenerateRecoveryPlan(ctx, errors.New("connection refused"), testContext())
	require.NoError(t, err)
	for _, a := range p2.Actions {
		if a.Type == types.ActionRetry {
			assert.InDelta(t, res.Updates[0].NewPrior, a.SuccessProbability, 1e-9)
		}
	}
}

func TestLearnFromOutcomeUnknownPlan(t *testing.T) {
	e := newTestEngine(t, Config{})

	res, err := e.LearnFromOutcome(context.Background(), "no-such-plan", types.ActionRetry,
		learn.Outcome{Success: true})
	require.NoError(t, err)

	require.Len(t, res.Updates, 1)
	assert.Equal(t, classify.CategoryUnknown, res.Updates[0].Category)
}

func TestLearnFromOutcomeInvalidInput(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := e.LearnFromOutcome(context.Background(), "p", types.ActionType("teleport"),
		learn.Outcome{Success: true})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

type collectSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *collectSink) Emit(event analytics.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) seen() []analytics.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]analytics.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// stallingAnalyzer blocks until the request context is cancelled.
type stallingAnalyzer struct{}

func (stallingAnalyzer) AnalyzeError(ctx context.Context, _ error, _ types.Context) (classify.Analysis, error) {
	<-ctx.Done()
	return classify.Analysis{}, ctx.Err()
}

func TestPlanTimeoutFallsBackToLocal(t *testing.T) {
	cfg := Config{PlanTimeout: Duration(50 * time.Millisecond)}
	e := newTestEngine(t, cfg, WithAnalyzer(stallingAnalyzer{}))

	start := time.Now()
	p, err := e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	assert.Equal(t, classify.CategoryNetwork, p.Classification.Category)
	assert.Equal(t, classify.SourceLocal, p.Classification.Source)
	assert.NotEmpty(t, p.Actions)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAnalyticsEvents(t *testing.T) {
	sink := &collectSink{}
	cfg := DefaultConfig()
	e, err := New(cfg, WithAnalyticsSink(sink))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := e.GenerateRecoveryPlan(ctx, errors.New("connection refused"), testContext())
	require.NoError(t, err)
	_, err = e.LearnFromOutcome(ctx, p.ID, types.ActionRetry, learn.Outcome{Success: true})
	require.NoError(t, err)

	e.Close()

	seen := sink.seen()
	assert.Contains(t, seen, analytics.EventErrorClassified)
	assert.Contains(t, seen, analytics.EventPlanGenerated)
	assert.Contains(t, seen, analytics.EventLearningApplied)
}

func TestAnalyticsDisabled(t *testing.T) {
	sink := &collectSink{}
	cfg := DefaultConfig()
	cfg.EnableAnalytics = false
	e, err := New(cfg, WithAnalyticsSink(sink))
	require.NoError(t, err)

	_, err = e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)
	e.Close()

	assert.Empty(t, sink.seen())
}

func TestTracingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	e := newTestEngine(t, Config{}, WithTracer(provider.Tracer("test")))

	_, err := e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "recovery.GenerateRecoveryPlan")
}

func TestEngineClosed(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.ClassifyError(context.Background(), errors.New("x"), testContext())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.GenerateRecoveryPlan(context.Background(), errors.New("x"), testContext())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConfidenceLabel(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	assert.Equal(t, "high", e.ConfidenceLabel(0.9))
	assert.Equal(t, "medium", e.ConfidenceLabel(0.6))
	assert.Equal(t, "low", e.ConfidenceLabel(0.3))
	assert.Equal(t, "very_low", e.ConfidenceLabel(0.1))
}

func TestConcurrentPlanGeneration(t *testing.T) {
	e := newTestEngine(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.GenerateRecoveryPlan(context.Background(), errors.New("connection refused"), testContext())
			assert.NoError(t, err)
			if assert.NotNil(t, p) {
				assert.NotEmpty(t, p.Actions)
				assert.Greater(t, p.Metadata.ProcessingTime, time.Duration(0))
			}
		}()
	}
	wg.Wait()
}

func TestPlanIndexEviction(t *testing.T) {
	idx := newPlanIndex(2)
	idx.put("a", classify.CategoryNetwork)
	idx.put("b", classify.CategoryTimeout)
	idx.put("c", classify.CategorySystem)

	_, ok := idx.get("a")
	assert.False(t, ok)
	cat, ok := idx.get("b")
	require.True(t, ok)
	assert.Equal(t, classify.CategoryTimeout, cat)
}
