package analytics

import (
	"log/slog"
	"time"
)

// EventType names one engine lifecycle event.
type EventType string

const (
	// EventErrorClassified fires after each classification.
	EventErrorClassified EventType = "error_classified"

	// EventPlanGenerated fires after each successful plan build.
	EventPlanGenerated EventType = "recovery_plan_generated"

	// EventAlternativesFound fires when alternative tools pass the
	// confidence filter.
	EventAlternativesFound EventType = "alternative_tools_found"

	// EventActionExecuted fires after each action execution.
	EventActionExecuted EventType = "action_executed"

	// EventLearningApplied fires when an outcome moves a prior.
	EventLearningApplied EventType = "learning_applied"
)

// Event is one analytics record. Payload keys are event-specific and
// flat; values are primitives suitable for any sink.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink receives events. Implementations must not block for long: the
// emitter's worker delivers to every sink in series.
type Sink interface {
	Emit(event Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// SlogSink writes events as structured log records.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a sink over the given logger, defaulting to the
// process-wide one.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(event Event) {
	attrs := make([]any, 0, 2+2*len(event.Payload))
	attrs = append(attrs, "event", string(event.Type))
	for k, v := range event.Payload {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("analytics event", attrs...)
}
