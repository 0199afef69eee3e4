package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// Priors are clamped to this range. The floor keeps a repeatedly failing
// action rankable instead of vanishing; the ceiling keeps learning from
// declaring any action a sure thing.
const (
	PriorMin = 0.05
	PriorMax = 0.99
)

// Key identifies one confidence prior: an action type applied to an
// error category.
type Key struct {
	Action   types.ActionType
	Category classify.Category
}

// String renders the key in "action|category" form, the shape used as a
// Redis hash field by RedisPriors.
func (k Key) String() string {
	return string(k.Action) + "|" + string(k.Category)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	action, category, ok := strings.Cut(s, "|")
	if !ok || action == "" || category == "" {
		return Key{}, false
	}
	return Key{Action: types.ActionType(action), Category: classify.Category(category)}, true
}

// PriorStore is the shared store of success-probability priors.
//
// Snapshot returns a read-consistent copy for one plan build: no snapshot
// observes a half-applied update. Adjust applies a commutative clamped
// addition and returns the resulting value; implementations must be safe
// under concurrent Adjust calls.
type PriorStore interface {
	Snapshot(ctx context.Context) (map[Key]float64, error)
	Adjust(ctx context.Context, key Key, delta float64) (float64, error)
}

// DefaultPriors returns the seed priors for every template the catalog
// ships. Values encode category intuition: retrying a network blip is
// usually worth it, retrying a validation failure is not.
func DefaultPriors() map[Key]float64 {
	return map[Key]float64{
		{types.ActionRetry, classify.CategoryNetwork}:                    0.80,
		{types.ActionAlternativeTool, classify.CategoryNetwork}:          0.55,
		{types.ActionEscalate, classify.CategoryNetwork}:                 0.30,
		{types.ActionRetry, classify.CategoryTimeout}:                    0.75,
		{types.ActionModifyParams, classify.CategoryTimeout}:             0.60,
		{types.ActionAlternativeTool, classify.CategoryTimeout}:          0.50,
		{types.ActionRetry, classify.CategoryRateLimit}:                  0.70,
		{types.ActionAlternativeTool, classify.CategoryRateLimit}:        0.55,
		{types.ActionModifyParams, classify.CategoryValidation}:          0.65,
		{types.ActionManualIntervention, classify.CategoryValidation}:    0.60,
		{types.ActionManualIntervention, classify.CategoryAuthorization}: 0.65,
		{types.ActionEscalate, classify.CategoryAuthorization}:           0.45,
		{types.ActionEscalate, classify.CategorySystem}:                  0.60,
		{types.ActionRollback, classify.CategorySystem}:                  0.40,
		{types.ActionManualIntervention, classify.CategorySystem}:        0.50,
		{types.ActionAlternativeTool, classify.CategoryNotFound}:         0.60,
		{types.ActionManualIntervention, classify.CategoryNotFound}:      0.55,
		{types.ActionRetry, classify.CategoryUnknown}:                    0.35,
		{types.ActionManualIntervention, classify.CategoryUnknown}:       0.50,
	}
}

// defaultPrior returns the seed value for a key, or a neutral 0.5 for
// keys the catalog never seeded (e.g. learner updates for caller-defined
// combinations).
func defaultPrior(key Key) float64 {
	if v, ok := DefaultPriors()[key]; ok {
		return v
	}
	return 0.5
}

func clampPrior(v float64) float64 {
	if v < PriorMin {
		return PriorMin
	}
	if v > PriorMax {
		return PriorMax
	}
	return v
}

// MemoryPriors is the default in-process PriorStore: a mutex-guarded map
// seeded with DefaultPriors.
type MemoryPriors struct {
	mu     sync.RWMutex
	priors map[Key]float64
}

// NewMemoryPriors returns a store seeded with the catalog defaults.
func NewMemoryPriors() *MemoryPriors {
	return &MemoryPriors{priors: DefaultPriors()}
}

// Snapshot returns a copy of the current priors.
func (m *MemoryPriors) Snapshot(_ context.Context) (map[Key]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[Key]float64, len(m.priors))
	for k, v := range m.priors {
		out[k] = v
	}
	return out, nil
}

// Adjust adds delta to the prior for key, clamped to [PriorMin, PriorMax],
// and returns the new value. Unknown keys start from their default.
func (m *MemoryPriors) Adjust(_ context.Context, key Key, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.priors[key]
	if !ok {
		cur = defaultPrior(key)
	}
	v := clampPrior(cur + delta)
	m.priors[key] = v
	return v, nil
}
