package flow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/meshflow/internal/errs"
)

const instrumentationName = "github.com/roach88/meshflow/internal/flow"

var (
	attrTag   = attribute.Key("meshflow.op.tag")
	attrIndex = attribute.Key("meshflow.op.index")
	attrCode  = attribute.Key("meshflow.error.code")
)

// telemetry wraps the tracer and counters. The global providers are no-ops
// until the CLI installs real ones, so recording is always safe.
type telemetry struct {
	tracer  trace.Tracer
	applied metric.Int64Counter
	failed  metric.Int64Counter
	undone  metric.Int64Counter
	redone  metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}
	// instrument creation only fails for invalid names; a nil counter is
	// skipped by count
	t.applied, _ = meter.Int64Counter("meshflow.operations.applied",
		metric.WithDescription("Operations applied, including redo."))
	t.failed, _ = meter.Int64Counter("meshflow.operations.failed",
		metric.WithDescription("Operation applications that failed and were rolled back."))
	t.undone, _ = meter.Int64Counter("meshflow.operations.undone",
		metric.WithDescription("Operations reverted by undo."))
	t.redone, _ = meter.Int64Counter("meshflow.operations.redone",
		metric.WithDescription("Operations re-applied by redo."))
	return t
}

func (t *telemetry) start(ctx context.Context, name string, index int, tag string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrTag.String(tag), attrIndex.Int(index)))
}

func (t *telemetry) count(ctx context.Context, c metric.Int64Counter, tag string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrTag.String(tag)))
}

// end closes span, marking it failed when err is set.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := errs.CodeOf(err); code != "" {
			span.SetAttributes(attrCode.String(string(code)))
		}
	}
	span.End()
}
