// Package analytics publishes engine lifecycle events to pluggable
// sinks. Emission is fire-and-forget: a slow or absent sink can delay
// or drop events but never an engine operation.
package analytics
