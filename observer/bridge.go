package observer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relay-agents/relay/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Bridge replays relay traces into OpenTelemetry. Register it on a
// tracing registry:
//
//	inst, shutdown, _ := observer.Init(ctx, nil)
//	tracing.Default().RegisterProcessor(observer.NewBridge(inst))
//
// The bridge buffers nothing itself: spans are emitted when the trace
// ends, with their recorded start and end timestamps, so the OTEL SDK
// batcher sees one complete run at a time.
type Bridge struct {
	inst *Instruments
}

// NewBridge creates a tracing.Processor emitting OTEL spans and run
// metrics.
func NewBridge(inst *Instruments) *Bridge {
	return &Bridge{inst: inst}
}

// TraceStarted is a no-op; the bridge emits at trace end.
func (b *Bridge) TraceStarted(*tracing.Trace) {}

// SpanStarted is a no-op; the bridge emits at trace end.
func (b *Bridge) SpanStarted(*tracing.Span) {}

// SpanEnded is a no-op; the bridge emits at trace end.
func (b *Bridge) SpanEnded(*tracing.Span) {}

// TraceEnded converts the finished trace into one OTEL root span with
// a child per recorded span, and records run metrics.
func (b *Bridge) TraceEnded(t *tracing.Trace) {
	ctx := context.Background()
	end := time.Now()
	if t.End != nil {
		end = *t.End
	}

	rootAttrs := []attribute.KeyValue{
		AttrAgentName.String(t.Agent),
		AttrTraceID.String(t.ID),
	}
	if t.GroupID != "" {
		rootAttrs = append(rootAttrs, AttrGroupID.String(t.GroupID))
	}
	rctx, root := b.inst.Tracer.Start(ctx, "run "+t.Agent,
		trace.WithTimestamp(t.Start),
		trace.WithAttributes(rootAttrs...),
	)
	status := "ok"
	if strings.HasPrefix(t.Result, "error") {
		status = "error"
		root.SetStatus(codes.Error, t.Result)
	}
	root.SetAttributes(AttrRunResult.String(t.Result))

	handoffs := 0
	for _, s := range t.Spans {
		childEnd := end
		if s.End != nil {
			childEnd = *s.End
		}
		attrs := []attribute.KeyValue{AttrSpanType.String(string(s.Type))}
		for k, v := range s.Data {
			attrs = append(attrs, attribute.String("relay."+k, fmt.Sprintf("%v", v)))
		}
		_, child := b.inst.Tracer.Start(rctx, string(s.Type),
			trace.WithTimestamp(s.Start),
			trace.WithAttributes(attrs...),
		)
		switch s.Result {
		case "error":
			child.SetStatus(codes.Error, "error")
		case "triggered":
			b.inst.GuardrailTrips.Add(ctx, 1, metric.WithAttributes(
				AttrAgentName.String(t.Agent),
			))
		}
		if s.Type == tracing.SpanHandoff {
			handoffs++
		}
		child.End(trace.WithTimestamp(childEnd))
	}
	root.End(trace.WithTimestamp(end))

	if handoffs > 0 {
		b.inst.Handoffs.Add(ctx, int64(handoffs), metric.WithAttributes(
			AttrAgentName.String(t.Agent),
		))
	}
	b.inst.RunCount.Add(ctx, 1, metric.WithAttributes(
		AttrAgentName.String(t.Agent),
		attribute.String("status", status),
	))
	b.inst.RunDuration.Record(ctx, float64(end.Sub(t.Start).Milliseconds()), metric.WithAttributes(
		AttrAgentName.String(t.Agent),
	))
}

// compile-time check
var _ tracing.Processor = (*Bridge)(nil)
