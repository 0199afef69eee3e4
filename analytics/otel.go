package analytics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// OTelSink mirrors events onto OpenTelemetry instruments: a counter of
// events by type and a histogram of plan build latency.
type OTelSink struct {
	events     metric.Int64Counter
	processing metric.Float64Histogram
}

// NewOTelSink creates the instruments on the given meter. A nil meter
// yields a functioning sink backed by no-op instruments.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("recovery")
	}

	events, err := meter.Int64Counter("recovery.analytics.events",
		metric.WithDescription("Engine analytics events by type"))
	if err != nil {
		return nil, err
	}
	processing, err := meter.Float64Histogram("recovery.plan.processing_time",
		metric.WithDescription("Recovery plan build latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &OTelSink{events: events, processing: processing}, nil
}

func (s *OTelSink) Emit(event Event) {
	ctx := context.Background()
	s.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", string(event.Type))))

	if event.Type != EventPlanGenerated {
		return
	}
	if ms, ok := event.Payload["processing_ms"].(float64); ok {
		s.processing.Record(ctx, ms)
	}
}
