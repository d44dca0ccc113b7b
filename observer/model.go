package observer

import (
	"context"
	"time"

	relay "github.com/relay-agents/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedModel wraps a relay.Model with OTEL instrumentation.
type ObservedModel struct {
	inner relay.Model
	inst  *Instruments
}

// WrapModel returns an instrumented model that emits traces, metrics,
// and logs for every completion.
func WrapModel(inner relay.Model, inst *Instruments) *ObservedModel {
	return &ObservedModel{inner: inner, inst: inst}
}

func (o *ObservedModel) Name() string { return o.inner.Name() }

func (o *ObservedModel) Complete(ctx context.Context, req relay.ModelRequest) (relay.ModelResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrLLMModel.String(o.modelName(req))),
	}
	spanName := "llm.complete"
	method := "complete"
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
		spanName = "llm.complete_with_tools"
		method = "complete_with_tools"
	}

	ctx, span := o.inst.Tracer.Start(ctx, spanName, spanAttrs...)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Complete(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, o.modelName(req), method, status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedModel) StreamComplete(ctx context.Context, req relay.ModelRequest, ch chan<- relay.Event) (relay.ModelResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		AttrLLMModel.String(o.modelName(req)),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count events. The mid channel is buffered
	// generously so the inner model never blocks on send while the
	// forwarder waits on a slow consumer.
	bufSize := max(cap(ch), 64)
	mid := make(chan relay.Event, bufSize)
	events := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for ev := range mid {
			events++
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	resp, err := o.inner.StreamComplete(ctx, req, mid)
	<-done // forwarding finished; events is stable

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamEvents.Int(events))
	o.record(ctx, span, o.modelName(req), "stream", status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedModel) modelName(req relay.ModelRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return o.inner.Name()
}

func (o *ObservedModel) record(ctx context.Context, span trace.Span, model, method, status string, durationMs float64, usage relay.Usage) {
	cost := o.inst.Cost.Calculate(model, usage.PromptTokens, usage.CompletionTokens)

	attrs := metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int64(usage.PromptTokens),
		AttrTokensOutput.Int64(usage.CompletionTokens),
		AttrCostUSD.Float64(cost),
	)

	o.inst.TokenUsage.Add(ctx, usage.PromptTokens, metric.WithAttributes(
		AttrLLMModel.String(model),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, usage.CompletionTokens, metric.WithAttributes(
		AttrLLMModel.String(model),
		attribute.String("direction", "output"),
	))
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.ModelRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.ModelDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", model),
		otellog.String("llm.method", method),
		otellog.Int64("llm.tokens.input", usage.PromptTokens),
		otellog.Int64("llm.tokens.output", usage.CompletionTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

// compile-time check
var _ relay.Model = (*ObservedModel)(nil)
