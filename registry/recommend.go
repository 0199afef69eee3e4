package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zero-day-ai/recovery/plan"
	"github.com/zero-day-ai/recovery/types"
)

// Recommender adapts a Registry into the plan builder's recommendation
// interface. Candidates are tools that advertise the failing operation
// as a capability; the failing tool itself is excluded. Confidence
// grows with the number of live instances, since redundancy is the best
// signal available without call history.
type Recommender struct {
	registry Registry
	logger   *slog.Logger
}

// NewRecommender wraps a registry. Nil registries are rejected at
// recommendation time, not here, so construction never fails.
func NewRecommender(reg Registry, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{registry: reg, logger: logger}
}

const (
	baseConfidence      = 0.6
	perInstanceBonus    = 0.1
	maxInstancesCounted = 3
)

// Recommend returns one Alternative per distinct tool capable of the
// failing operation, ordered by confidence then name so results are
// stable for identical registry state.
func (r *Recommender) Recommend(ctx context.Context, ectx types.Context) ([]plan.Alternative, error) {
	if r.registry == nil {
		return nil, fmt.Errorf("registry: no registry configured")
	}

	instances, err := r.registry.DiscoverByCapability(ctx, ectx.Operation)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, info := range instances {
		if info.Name == ectx.Tool {
			continue
		}
		counts[info.Name]++
	}

	alts := make([]plan.Alternative, 0, len(counts))
	for name, n := range counts {
		extra := n - 1
		if extra > maxInstancesCounted {
			extra = maxInstancesCounted
		}
		conf := baseConfidence + perInstanceBonus*float64(extra)
		alts = append(alts, plan.Alternative{
			ToolName:         name,
			Confidence:       conf,
			Reasoning:        fmt.Sprintf("%d live instance(s) advertise capability %q", n, ectx.Operation),
			EstimatedSuccess: conf,
		})
	}

	sort.Slice(alts, func(i, j int) bool {
		if alts[i].Confidence != alts[j].Confidence {
			return alts[i].Confidence > alts[j].Confidence
		}
		return alts[i].ToolName < alts[j].ToolName
	})

	r.logger.Debug("alternative tools discovered",
		"operation", ectx.Operation,
		"excluded", ectx.Tool,
		"candidates", len(alts))
	return alts, nil
}
