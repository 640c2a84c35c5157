package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartSpanFromMessage continues the trace carried in the application
// properties of a queue message.
func StartSpanFromMessage(ctx context.Context, tracerName, operationName string, props map[string]string) (context.Context, trace.Span) {
	if len(props) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(props))
	}
	return GetTracer(tracerName).Start(ctx, operationName)
}

// TraceID returns the hex trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
