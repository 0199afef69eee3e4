package learn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zero-day-ai/recovery/catalog"
	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// Outcome is the caller's report on how a recovery action went.
type Outcome struct {
	// Success is whether the action resolved the original failure.
	Success bool `json:"success"`

	// ResolutionTime is how long resolution took end to end.
	ResolutionTime time.Duration `json:"resolution_time,omitempty"`

	// EffectivenessRating grades the action on a 1 to 5 scale and
	// scales the prior adjustment. Zero means unrated and is treated
	// as a neutral 3.
	EffectivenessRating float64 `json:"effectiveness_rating,omitempty"`

	// Feedback is optional free-form commentary.
	Feedback string `json:"feedback,omitempty"`
}

// ConfidenceUpdate records one prior movement caused by an outcome.
type ConfidenceUpdate struct {
	Action     types.ActionType  `json:"action"`
	Category   classify.Category `json:"category"`
	Adjustment float64           `json:"adjustment"`
	NewPrior   float64           `json:"new_prior"`
}

// Result reports what recording an outcome did.
type Result struct {
	// Success is whether the outcome was accepted.
	Success bool `json:"success"`

	// LearningApplied is whether the prior store was actually updated.
	// False with Success true means the store was unavailable and the
	// outcome was recorded without effect.
	LearningApplied bool `json:"learning_applied"`

	Updates []ConfidenceUpdate `json:"updates,omitempty"`
}

var (
	// ErrInvalidRating is returned for ratings outside [1, 5].
	ErrInvalidRating = errors.New("learn: effectiveness rating must be between 1 and 5")

	// ErrInvalidAction is returned for unknown action types.
	ErrInvalidAction = errors.New("learn: unknown action type")

	// ErrMissingCategory is returned when the outcome has no category.
	ErrMissingCategory = errors.New("learn: missing category")
)

// baseStep is the maximum prior movement from a single outcome.
const baseStep = 0.05

// neutralRating is substituted when the caller leaves the rating unset.
const neutralRating = 3.0

// Learner converts outcomes into prior adjustments.
type Learner struct {
	priors catalog.PriorStore
	logger *slog.Logger
}

// New builds a Learner over the given prior store, normally the same
// store the catalog reads.
func New(priors catalog.PriorStore, logger *slog.Logger) *Learner {
	if priors == nil {
		priors = catalog.NewMemoryPriors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{priors: priors, logger: logger}
}

// Record folds one outcome into the prior for (action, category).
//
// The returned error covers invalid input only. A prior-store failure
// does not fail the call: the outcome is accepted with
// LearningApplied false so a flaky store cannot break outcome
// reporting.
func (l *Learner) Record(ctx context.Context, action types.ActionType, category classify.Category, outcome Outcome) (Result, error) {
	if !action.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if category == "" {
		return Result{}, ErrMissingCategory
	}
	rating := outcome.EffectivenessRating
	if rating == 0 {
		rating = neutralRating
	}
	if rating < 1 || rating > 5 {
		return Result{}, fmt.Errorf("%w: got %.2f", ErrInvalidRating, outcome.EffectivenessRating)
	}

	adjustment := adjustmentFor(outcome.Success, rating)
	key := catalog.Key{Action: action, Category: category}

	newPrior, err := l.priors.Adjust(ctx, key, adjustment)
	if err != nil {
		l.logger.Warn("prior store unavailable, outcome recorded without learning",
			"action", action,
			"category", category,
			"error", err)
		return Result{Success: true}, nil
	}

	l.logger.Debug("outcome learned",
		"action", action,
		"category", category,
		"success", outcome.Success,
		"rating", rating,
		"adjustment", adjustment,
		"new_prior", newPrior)

	return Result{
		Success:         true,
		LearningApplied: true,
		Updates: []ConfidenceUpdate{{
			Action:     action,
			Category:   category,
			Adjustment: adjustment,
			NewPrior:   newPrior,
		}},
	}, nil
}

// Priors exposes the underlying store.
func (l *Learner) Priors() catalog.PriorStore {
	return l.priors
}

// adjustmentFor maps an outcome to a signed prior delta. A success
// always moves the prior up and a failure always moves it down; the
// rating scales the magnitude, floored so no valid outcome is a no-op.
func adjustmentFor(success bool, rating float64) float64 {
	if success {
		scale := (rating - 2.0) / 3.0
		if scale < 0.1 {
			scale = 0.1
		}
		return baseStep * scale
	}
	scale := (3.0 - rating) / 3.0
	if scale < 0.1 {
		scale = 0.1
	}
	return -baseStep * scale
}
