package observer

import (
	"context"
	"encoding/json"
	"time"

	relay "github.com/relay-agents/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTool wraps a relay.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner relay.Tool
	inst  *Instruments
}

// WrapTool returns an instrumented tool.
func WrapTool(inner relay.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Name() string        { return o.inner.Name() }
func (o *ObservedTool) Description() string { return o.inner.Description() }

func (o *ObservedTool) Parameters() json.RawMessage { return o.inner.Parameters() }

func (o *ObservedTool) Execute(ctx context.Context, args json.RawMessage, tc relay.ToolContext) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	out, err := o.inner.Execute(ctx, args, tc)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(out)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(o.inner.Name()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", o.inner.Name()),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(out)),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out, err
}

// TransformError delegates to the inner tool's transform when it has
// one.
func (o *ObservedTool) TransformError(err error) string {
	if et, ok := o.inner.(relay.ErrorTransformer); ok {
		return et.TransformError(err)
	}
	return err.Error()
}

// compile-time checks
var (
	_ relay.Tool             = (*ObservedTool)(nil)
	_ relay.ErrorTransformer = (*ObservedTool)(nil)
)
