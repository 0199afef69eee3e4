// Package learn folds recovery outcomes back into the action priors.
//
// Each recorded outcome nudges the prior for its (action, category)
// pair: successes push it up, failures push it down, with the step
// scaled by the caller's effectiveness rating. Adjustments are additive
// and clamped by the prior store, so feedback accumulates across
// occurrences instead of overwriting.
package learn
