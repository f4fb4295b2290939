package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fieldline/rebatch/item"
)

// meterName is the instrumentation scope name for rebatch metrics.
const meterName = "github.com/fieldline/rebatch"

// Metrics returns middleware that records per-extraction metrics using
// the global OTel MeterProvider. If no MeterProvider is configured,
// noop instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - rebatch.extraction.duration (Float64Histogram): call time in
//     seconds, with attribute: status ("ok" or "error")
//   - rebatch.extraction.calls (Int64Counter): total extraction calls,
//     with attribute: status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"rebatch.extraction.duration",
		metric.WithDescription("Duration of extraction calls in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	calls, cErr := meter.Int64Counter(
		"rebatch.extraction.calls",
		metric.WithDescription("Total number of extraction calls"),
		metric.WithUnit("{call}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, _ item.Item, next Handler) ([]byte, error) {
		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(attribute.String("status", status))

		duration.Record(ctx, elapsed, attrs)
		calls.Add(ctx, 1, attrs)

		return result, err
	}
}
