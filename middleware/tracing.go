package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldline/rebatch/item"
)

// tracerName is the instrumentation scope name for rebatch tracing.
const tracerName = "github.com/fieldline/rebatch"

// Tracing returns middleware that wraps each extraction call in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: rebatch.item.id and rebatch.payload_bytes.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, it item.Item, next Handler) ([]byte, error) {
		ctx, span := tracer.Start(ctx, "rebatch.extraction",
			trace.WithAttributes(
				attribute.String("rebatch.item.id", it.ID),
				attribute.Int("rebatch.payload_bytes", len(it.Payload)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
