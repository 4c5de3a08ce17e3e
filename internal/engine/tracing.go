// Tracing instrumentation for engine runs.
package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("quill/engine")

// startRunSpan opens the span covering one full run.
func startRunSpan(ctx context.Context, traceID string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, "engine.run")
	span.SetAttributes(attribute.String("run.trace_id", traceID))
	return ctx, span
}

// endRunSpan closes the run span with its terminal status.
func endRunSpan(span oteltrace.Span, status string, err error) {
	span.SetAttributes(attribute.String("run.status", status))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startStepSpan opens a span for one plan step.
func startStepSpan(ctx context.Context, step int, agent string) (context.Context, oteltrace.Span) {
	ctx, span := tracer.Start(ctx, "engine.step")
	span.SetAttributes(
		attribute.Int("step.number", step),
		attribute.String("step.agent", agent),
	)
	return ctx, span
}

// endStepSpan closes a step span.
func endStepSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
