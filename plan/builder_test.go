package plan

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

func testContext() types.Context {
	return types.Context{
		Tool:      "http-fetch",
		Operation: "get",
		Timestamp: time.Now(),
	}
}

type stubRecommender struct {
	alts []Alternative
	err  error
}

func (s stubRecommender) Recommend(context.Context, types.Context) ([]Alternative, error) {
	return s.alts, s.err
}

type stubDescriber struct {
	expl Explanation
	err  error
}

func (s stubDescriber) GenerateExplanation(context.Context, error, types.Context) (Explanation, error) {
	return s.expl, s.err
}

func TestBuildProducesSortedActions(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})

	p, err := b.Build(context.Background(), errors.New("ECONNREFUSED: connection refused"), testContext())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, classify.CategoryNetwork, p.Classification.Category)
	require.NotEmpty(t, p.Actions)

	sorted := sort.SliceIsSorted(p.Actions, func(i, j int) bool {
		if p.Actions[i].SuccessProbability != p.Actions[j].SuccessProbability {
			return p.Actions[i].SuccessProbability > p.Actions[j].SuccessProbability
		}
		return p.Actions[i].EstimatedTime < p.Actions[j].EstimatedTime
	})
	assert.True(t, sorted)

	var total time.Duration
	for _, a := range p.Actions {
		assert.NotEmpty(t, a.ID)
		assert.True(t, a.Type.Valid())
		assert.Greater(t, a.SuccessProbability, 0.0)
		total += a.EstimatedTime
	}
	assert.Equal(t, total, p.TotalEstimatedTime)
	assert.Greater(t, p.Metadata.ProcessingTime, time.Duration(0))
	assert.NotEmpty(t, p.UserFriendlyExplanation)
	assert.NotEmpty(t, p.TechnicalAnalysis)
	assert.NotEmpty(t, p.Prevention)
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})

	_, err := b.Build(context.Background(), nil, testContext())
	assert.ErrorIs(t, err, ErrNilError)

	_, err = b.Build(context.Background(), errors.New("boom"), types.Context{Operation: "get"})
	assert.ErrorIs(t, err, types.ErrMissingField)
}

func TestBuildUnmatchedErrorStillPlans(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})

	p, err := b.Build(context.Background(), errors.New("zorp blarg"), testContext())
	require.NoError(t, err)

	assert.Equal(t, classify.CategoryUnknown, p.Classification.Category)
	assert.NotEmpty(t, p.Actions)
}

func TestBuildTruncatesOversizedMessages(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})
	huge := errors.New(strings.Repeat("connection refused ", 600))

	p, err := b.Build(context.Background(), huge, testContext())
	require.NoError(t, err)

	assert.Less(t, len([]rune(p.UserFriendlyExplanation)), 1000)
	assert.Less(t, len([]rune(p.TechnicalAnalysis)), 1000)
}

func TestBuildRetryDecay(t *testing.T) {
	b := NewBuilder(nil, nil, Config{BaseDelay: time.Second, MaxDelay: time.Minute})

	retryProb := func(attempts int) (float64, time.Duration) {
		ectx := testContext()
		ectx.PreviousAttempts = attempts
		p, err := b.Build(context.Background(), errors.New("connection refused"), ectx)
		require.NoError(t, err)
		for _, a := range p.Actions {
			if a.Type == types.ActionRetry {
				d, _ := a.Parameters["delay"].(time.Duration)
				return a.SuccessProbability, d
			}
		}
		t.Fatal("no retry action in plan")
		return 0, 0
	}

	fresh, freshDelay := retryProb(0)
	worn, wornDelay := retryProb(3)

	assert.Less(t, worn, fresh, "retry confidence must decay with attempts")
	assert.Greater(t, wornDelay, freshDelay, "retry delay must stretch with attempts")

	// Enough attempts must hit the delay ceiling, not overflow past it.
	_, capped := retryProb(30)
	assert.Equal(t, time.Minute, capped)
}

func TestBuildRetryParamsCarryLimits(t *testing.T) {
	b := NewBuilder(nil, nil, Config{MaxRetries: 5})

	p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	for _, a := range p.Actions {
		if a.Type == types.ActionRetry {
			assert.Equal(t, 5, a.Parameters["max_retries"])
			return
		}
	}
	t.Fatal("no retry action in plan")
}

func TestBuildFiltersAlternatives(t *testing.T) {
	rec := stubRecommender{alts: []Alternative{
		{ToolName: "curl", Confidence: 0.9},
		{ToolName: "netcat", Confidence: 0.3},
		{ToolName: "wget", Confidence: 0.6},
	}}
	b := NewBuilder(nil, nil, Config{ConfidenceThreshold: 0.5}, WithRecommender(rec))

	p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)

	require.Len(t, p.Alternatives, 2)
	assert.Equal(t, "curl", p.Alternatives[0].ToolName)
	assert.Equal(t, "wget", p.Alternatives[1].ToolName)

	// The top alternative is bound into the alternative-tool action.
	for _, a := range p.Actions {
		if a.Type == types.ActionAlternativeTool {
			assert.Equal(t, "curl", a.Parameters["tool"])
		}
	}
}

func TestBuildRecommenderFailureDegrades(t *testing.T) {
	rec := stubRecommender{err: errors.New("registry down")}
	b := NewBuilder(nil, nil, Config{}, WithRecommender(rec))

	p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)
	assert.Empty(t, p.Alternatives)
	assert.NotEmpty(t, p.Actions)
}

func TestBuildUsesDescriber(t *testing.T) {
	d := stubDescriber{expl: Explanation{UserFriendlyMessage: "The fetch service is briefly unreachable."}}
	b := NewBuilder(nil, nil, Config{}, WithDescriber(d))

	p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)
	assert.Equal(t, "The fetch service is briefly unreachable.", p.UserFriendlyExplanation)
}

func TestBuildDescriberFailureDegrades(t *testing.T) {
	d := stubDescriber{err: errors.New("model unavailable")}
	b := NewBuilder(nil, nil, Config{}, WithDescriber(d))

	p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
	require.NoError(t, err)
	assert.NotEmpty(t, p.UserFriendlyExplanation)
}

func TestBuildExplanationCache(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})
	ectx := testContext()

	first, err := b.Build(context.Background(), errors.New("connection refused"), ectx)
	require.NoError(t, err)
	assert.False(t, first.Metadata.CacheHit)

	second, err := b.Build(context.Background(), errors.New("connection refused by peer"), ectx)
	require.NoError(t, err)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.UserFriendlyExplanation, second.UserFriendlyExplanation)

	// Same error, different tool: different fingerprint, no hit.
	other := ectx
	other.Tool = "db-query"
	third, err := b.Build(context.Background(), errors.New("connection refused"), other)
	require.NoError(t, err)
	assert.False(t, third.Metadata.CacheHit)
}

func TestBuildCacheDisabled(t *testing.T) {
	b := NewBuilder(nil, nil, Config{CacheSize: -1})
	ectx := testContext()

	for i := 0; i < 2; i++ {
		p, err := b.Build(context.Background(), errors.New("connection refused"), ectx)
		require.NoError(t, err)
		assert.False(t, p.Metadata.CacheHit)
	}
}

func TestBuildConcurrent(t *testing.T) {
	b := NewBuilder(nil, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := b.Build(context.Background(), errors.New("connection refused"), testContext())
			assert.NoError(t, err)
			if assert.NotNil(t, p) {
				assert.NotEmpty(t, p.Actions)
				assert.Greater(t, p.Metadata.ProcessingTime, time.Duration(0))
			}
		}()
	}
	wg.Wait()
}
