// Package execute runs recovery actions against caller-supplied hooks.
//
// Automatic action types (retry, alternative tool, rollback with a
// handler) are executed in-process with per-attempt timeouts and
// cancellation-aware backoff. Action types that need a human (manual
// intervention, escalation, parameter changes) are marked deferred
// rather than failed. Execution failures land in the Result; the error
// return is reserved for invalid input and missing hooks.
package execute
