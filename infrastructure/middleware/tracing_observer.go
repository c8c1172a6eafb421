package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.StepObserver = (*TracingObserver)(nil)

// TracingObserver records each reducer step as a span and then hands the
// event, with the span in context, to the next observer.
type TracingObserver struct {
	tracer trace.Tracer
	next   ports.StepObserver
}

// NewTracingObserver creates a TracingObserver. A nil tracer uses the
// global provider; next may be nil.
func NewTracingObserver(tracer trace.Tracer, next ports.StepObserver) *TracingObserver {
	if tracer == nil {
		tracer = otel.Tracer("reducer-observer")
	}
	return &TracingObserver{tracer: tracer, next: next}
}

// ObserveStep implements ports.StepObserver.
func (o *TracingObserver) ObserveStep(ctx context.Context, event ports.StepEvent) {
	ctx, span := o.tracer.Start(ctx, "Reducer.Step",
		trace.WithAttributes(
			attribute.String("stream.id", event.StreamID),
			attribute.Int64("stream.sequence", int64(event.Sequence)),
			attribute.String("unit.id", event.Unit),
			attribute.Float64("step.input", event.Input),
			attribute.Float64("step.scalar", event.Current.Scalar),
			attribute.String("step.decision", event.Current.Decision.String()),
			attribute.Int64("step.duration_ns", event.Duration.Nanoseconds()),
		),
	)
	if event.Transitioned() {
		span.AddEvent("decision.transition", trace.WithAttributes(
			attribute.String("from", event.Previous.Decision.String()),
			attribute.String("to", event.Current.Decision.String()),
			attribute.Float64("previous.scalar", event.Previous.Scalar),
		))
	}
	span.End()

	if o.next != nil {
		o.next.ObserveStep(ctx, event)
	}
}
