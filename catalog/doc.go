// Package catalog holds the recovery action templates and the confidence
// prior store.
//
// Templates are category-tuned blueprints for recovery actions; the plan
// builder instantiates them into concrete, context-bound actions. The
// prior store keeps the per-(action type, category) success-probability
// estimates, the only mutable state shared across requests. Reads take a
// consistent snapshot; writes are commutative clamped additions applied
// by the outcome learner.
package catalog
