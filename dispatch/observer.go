package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ggoodman/toolwire/dispatch"

// Outcome labels recorded by the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeUnknownTool = "unknown_tool"
	OutcomeInvalidArgs = "invalid_args"
	OutcomeFailed      = "failed"
	OutcomeInternal    = "internal_error"
)

// Observer records tool call metrics and spans into OpenTelemetry.
type Observer struct {
	tracer trace.Tracer

	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter/tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	calls, err := meter.Int64Counter(
		"toolwire.tool.calls",
		metric.WithDescription("Number of tool calls dispatched"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"toolwire.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &Observer{tracer: tracer, calls: calls, duration: duration}, nil
}

// DefaultObserver binds to the global OpenTelemetry providers, which are
// no-ops unless the embedding program installs real ones.
func DefaultObserver() *Observer {
	o, err := NewObserver(otel.GetMeterProvider().Meter(instrumentationName), otel.Tracer(instrumentationName))
	if err != nil {
		return nil
	}
	return o
}

// start opens a span for one call. The returned function records the outcome
// and ends the span.
func (o *Observer) start(ctx context.Context, tool string) (context.Context, func(outcome string)) {
	if o == nil {
		return ctx, func(string) {}
	}
	begin := time.Now()
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(attribute.String("tool_name", tool)))
	}
	return ctx, func(outcome string) {
		attrs := []attribute.KeyValue{
			attribute.String("tool_name", tool),
			attribute.String("outcome", outcome),
		}
		options := metric.WithAttributes(attrs...)
		o.calls.Add(ctx, 1, options)
		o.duration.Record(ctx, time.Since(begin).Seconds(), options)
		if span == nil {
			return
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		if outcome == OutcomeOK {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}
}
