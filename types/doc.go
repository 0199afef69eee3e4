// Package types defines the shared data model for the recovery engine:
// the immutable invocation context captured at failure time and the
// enumerated recovery action types used across the catalog, planner,
// executor, and learner.
package types
