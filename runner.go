package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relay-agents/relay/tracing"
)

const (
	defaultMaxTurns   = 10
	defaultRunTimeout = 60 * time.Second
)

// runConfig carries per-run settings shared by Run, RunAsync, and
// RunStream.
type runConfig struct {
	maxTurns           int
	timeout            time.Duration
	toolTimeout        time.Duration
	defaultModel       Model
	logger             *slog.Logger
	registry           *tracing.Registry
	tracingOff         bool
	traceID            string
	groupID            string
	metadata           map[string]any
	contextValue       any
	bufferSize         int
	previousResponseID string
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithMaxTurns caps tool-continuation turns (default 10). Zero or
// negative values are rejected at run start.
func WithMaxTurns(n int) RunOption {
	return func(c *runConfig) { c.maxTurns = n }
}

// WithTimeout bounds a synchronous run end-to-end (default 60s for
// Run). For RunAsync it applies only when set explicitly; streaming
// runs have no aggregate timeout.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) { c.timeout = d }
}

// WithToolTimeout bounds each tool call (default 30s).
func WithToolTimeout(d time.Duration) RunOption {
	return func(c *runConfig) { c.toolTimeout = d }
}

// WithDefaultModel sets the model used by agents that do not declare
// their own.
func WithDefaultModel(m Model) RunOption {
	return func(c *runConfig) { c.defaultModel = m }
}

// WithLogger sets the structured logger for run diagnostics.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// WithTracing routes this run's trace to a specific registry instead
// of the process default.
func WithTracing(r *tracing.Registry) RunOption {
	return func(c *runConfig) { c.registry = r }
}

// WithTracingDisabled skips trace recording for this run. The run
// still carries a trace ID in its result.
func WithTracingDisabled() RunOption {
	return func(c *runConfig) { c.tracingOff = true }
}

// WithTraceID pins the run's trace identifier instead of generating
// one.
func WithTraceID(id string) RunOption {
	return func(c *runConfig) { c.traceID = id }
}

// WithGroupID correlates this run's trace with others in the same
// logical workflow.
func WithGroupID(id string) RunOption {
	return func(c *runConfig) { c.groupID = id }
}

// WithRunMetadata attaches caller metadata to the run context and the
// trace.
func WithRunMetadata(meta map[string]any) RunOption {
	return func(c *runConfig) { c.metadata = meta }
}

// WithContextValue wraps a caller value into the run context. Tools
// and guardrails read it back via RunContext.Value.
func WithContextValue(v any) RunOption {
	return func(c *runConfig) { c.contextValue = v }
}

// WithStreamBufferSize sets the event queue capacity for streaming
// runs (default 256).
func WithStreamBufferSize(n int) RunOption {
	return func(c *runConfig) { c.bufferSize = n }
}

// WithPreviousResponseID forwards a server-side conversation anchor
// verbatim with every request of this run.
func WithPreviousResponseID(id string) RunOption {
	return func(c *runConfig) { c.previousResponseID = id }
}

func buildRunConfig(opts []RunOption) runConfig {
	cfg := runConfig{
		maxTurns:    defaultMaxTurns,
		toolTimeout: defaultToolTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	if cfg.registry == nil {
		cfg.registry = tracing.Default()
	}
	return cfg
}

// RunResult is the terminal value of a successful run.
type RunResult struct {
	// Output is the final text, after output guardrails.
	Output string
	// Usage aggregates token counts across every model call of the
	// run, handoffs included.
	Usage Usage
	// TraceID identifies the run. Present even when trace recording
	// is disabled.
	TraceID string
	// ResponseID is the id of the last model response.
	ResponseID string
	// Turns counts tool-continuation turns. A run without tool calls
	// finishes with zero.
	Turns int
	// Duration is wall-clock time for the whole run.
	Duration time.Duration
	// Agent is the name of the agent that produced the final output,
	// after any handoffs.
	Agent string
	// Items is the conversation as the final agent saw it, plus its
	// output.
	Items []Item
}

// runner drives one run end-to-end. It owns all run state; nothing
// here is safe for concurrent use.
type runner struct {
	cfg    runConfig
	agent  *Agent
	rc     *RunContext
	logger *slog.Logger
	reg    *tracing.Registry
	traced bool

	conversation []Item
	turn         int
	model        Model
	toolMap      map[string]Tool

	traceID     string
	agentSpanID string
	responseID  string
	buffer      *streamBuffer
	startedAt   time.Time
}

func newRunner(agent *Agent, input Input, cfg runConfig, buffer *streamBuffer) (*runner, error) {
	if agent == nil {
		return nil, &ErrInvalidConfig{Field: "agent", Reason: "must not be nil"}
	}
	if cfg.maxTurns < 1 {
		return nil, &ErrInvalidConfig{Field: "max_turns", Reason: "must be at least 1"}
	}
	rc := NewRunContext(cfg.contextValue)
	for k, v := range cfg.metadata {
		rc.SetMetadata(k, v)
	}
	r := &runner{
		cfg:          cfg,
		agent:        agent,
		rc:           rc,
		logger:       cfg.logger,
		reg:          cfg.registry,
		conversation: input.normalize(),
		buffer:       buffer,
		startedAt:    time.Now(),
	}
	r.traceID = cfg.traceID
	if r.traceID == "" {
		r.traceID = tracing.NewTraceID()
	}
	r.traced = !cfg.tracingOff && !r.reg.Disabled()
	return r, nil
}

// run executes the turn loop. The stream buffer, when present, is
// completed on every return path.
func (r *runner) run(ctx context.Context) (result RunResult, err error) {
	topts := []tracing.TraceOption{tracing.WithTraceID(r.traceID)}
	if r.cfg.groupID != "" {
		topts = append(topts, tracing.WithGroupID(r.cfg.groupID))
	}
	if len(r.cfg.metadata) > 0 {
		topts = append(topts, tracing.WithTraceContext(r.cfg.metadata))
	}
	if r.traced {
		r.reg.StartTrace(r.agent.name, latestUserText(r.conversation), topts...)
	}
	defer func() {
		if hookErr := r.endAgent(ctx, err); hookErr != nil && err == nil {
			result, err = RunResult{}, hookErr
		}
		r.endSpan(r.agentSpanID, "")
		if err != nil {
			r.endTrace("error: " + err.Error())
		} else {
			r.endTrace("ok")
		}
		if r.buffer != nil {
			r.buffer.complete()
		}
	}()

	if err := r.startAgent(ctx); err != nil {
		return RunResult{}, err
	}

	for {
		if r.turn >= r.cfg.maxTurns {
			return RunResult{}, &ErrMaxTurns{Turns: r.turn}
		}
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		instructions, err := r.agent.resolveInstructions(ctx, r.rc)
		if err != nil {
			return RunResult{}, err
		}

		if len(r.agent.inputGuardrails) > 0 {
			spanID := r.recordSpan(tracing.SpanGuardrail, map[string]any{"phase": "input"})
			if err := runInputGuardrails(ctx, r.agent.inputGuardrails, latestUserText(r.conversation), r.rc); err != nil {
				r.endSpan(spanID, "triggered")
				return RunResult{}, err
			}
			r.endSpan(spanID, "ok")
		}

		resp, err := r.modelCall(ctx, instructions)
		if err != nil {
			return RunResult{}, err
		}
		r.rc.AddUsage(resp.Usage)
		if resp.ID != "" {
			r.responseID = resp.ID
		}

		text, calls, handoffItems := classify(resp.Output)

		if len(calls) > 0 {
			handoffCalls, toolCalls := splitHandoffCalls(calls)
			if len(handoffCalls) > 0 {
				// First handoff wins; remaining calls are discarded.
				if err := r.handoffByCall(ctx, handoffCalls[0]); err != nil {
					return RunResult{}, err
				}
				continue
			}
			if err := r.dispatchTurn(ctx, toolCalls); err != nil {
				return RunResult{}, err
			}
			continue
		}

		if len(handoffItems) > 0 {
			if err := r.handoffByItem(ctx, handoffItems[0]); err != nil {
				return RunResult{}, err
			}
			continue
		}

		if text != "" {
			final := text
			if len(r.agent.outputGuardrails) > 0 {
				spanID := r.recordSpan(tracing.SpanGuardrail, map[string]any{"phase": "output"})
				final, err = runOutputGuardrails(ctx, r.agent.outputGuardrails, text, r.rc)
				if err != nil {
					r.endSpan(spanID, "triggered")
					return RunResult{}, err
				}
				r.endSpan(spanID, "ok")
			}
			r.conversation = append(r.conversation, AssistantText(final))
			return r.succeed(ctx, final), nil
		}

		return RunResult{}, &ErrUnexpectedResponse{Message: "model returned no actionable items"}
	}
}

// startAgent resolves the agent's model and tools and fires its
// OnStart hook. Called at run start and again after every handoff.
func (r *runner) startAgent(ctx context.Context) error {
	m := r.agent.model
	if m == nil {
		m = r.cfg.defaultModel
	}
	if m == nil {
		return &ErrInvalidConfig{
			Field:  "model",
			Reason: fmt.Sprintf("agent %q has no model and no default model is set", r.agent.name),
		}
	}
	r.model = m
	r.toolMap = r.agent.toolMap()

	r.endSpan(r.agentSpanID, "")
	r.agentSpanID = r.recordSpan(tracing.SpanAgent, map[string]any{"agent": r.agent.name})

	if r.agent.onStart != nil {
		if err := r.agent.onStart(ctx, r.rc, r.agent); err != nil {
			return fmt.Errorf("agent %q on_start: %w", r.agent.name, err)
		}
	}
	r.logger.Debug("agent activated", "agent", r.agent.name, "model", m.Name())
	return nil
}

// endAgent fires the active agent's OnEnd hook at run termination,
// symmetric with startAgent. runErr is the run's terminal error.
func (r *runner) endAgent(ctx context.Context, runErr error) error {
	if r.agent.onEnd == nil {
		return nil
	}
	if err := r.agent.onEnd(ctx, r.rc, r.agent, runErr); err != nil {
		return fmt.Errorf("agent %q on_end: %w", r.agent.name, err)
	}
	return nil
}

// modelCall performs one completion, streaming it into the buffer
// when one is attached.
func (r *runner) modelCall(ctx context.Context, instructions string) (ModelResponse, error) {
	var settings ModelSettings
	if r.agent.settings != nil {
		settings = *r.agent.settings
	}
	req := ModelRequest{
		Instructions:       instructions,
		Input:              r.conversation,
		Tools:              r.agent.toolDefinitions(),
		Settings:           settings,
		OutputSchema:       r.agent.outputSchema,
		PreviousResponseID: r.cfg.previousResponseID,
	}

	spanID := r.recordSpan(tracing.SpanGeneration, map[string]any{
		"model": r.model.Name(),
		"turn":  r.turn,
	})

	var resp ModelResponse
	var err error
	if r.buffer == nil {
		resp, err = r.model.Complete(ctx, req)
	} else {
		resp, err = r.streamCall(ctx, req)
	}
	if err != nil {
		r.endSpan(spanID, "error")
		return ModelResponse{}, err
	}
	r.endSpan(spanID, "ok")
	return resp, nil
}

// streamCall runs one streaming completion, forwarding events into
// the buffer. Per-call StreamComplete markers are swallowed; the
// runner emits a single one when the whole run finishes. Completed
// events pick up the run's trace ID on the way through.
func (r *runner) streamCall(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	events := make(chan Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			switch ev := e.(type) {
			case StreamComplete:
				continue
			case ResponseCompleted:
				ev.TraceID = r.traceID
				r.buffer.emit(ctx, ev)
			default:
				r.buffer.emit(ctx, e)
			}
		}
	}()
	resp, err := r.model.StreamComplete(ctx, req, events)
	<-done
	return resp, err
}

// dispatchTurn runs one batch of tool calls and appends the calls and
// their outputs to the conversation. This is the only place the turn
// counter moves.
func (r *runner) dispatchTurn(ctx context.Context, calls []Item) error {
	spanID := r.recordSpan(tracing.SpanTool, map[string]any{"calls": len(calls)})
	r.conversation = append(r.conversation, calls...)

	outcomes := dispatchTools(ctx, calls, r.toolMap, r.rc, r.cfg.toolTimeout, r.logger)
	for _, o := range outcomes {
		r.conversation = append(r.conversation, o.item())
	}
	r.endSpan(spanID, "ok")

	if err := ctx.Err(); err != nil {
		return err
	}
	r.turn++
	if r.buffer != nil {
		r.buffer.emit(ctx, UsageUpdate{Usage: r.rc.Usage()})
	}
	return nil
}

// handoffByCall re-targets the loop from a synthetic handoff tool
// call. The call and a structured acknowledgement join the
// conversation before the handoff's filter runs, so the
// call/output pairing invariant survives filtering.
func (r *runner) handoffByCall(ctx context.Context, call Item) error {
	h, err := resolveHandoffCall(r.agent, call.Name)
	if err != nil {
		return err
	}
	conv := append(r.conversation, call)
	ack, _ := json.Marshal(map[string]string{"handoff": h.Target.name})
	conv = append(conv, FunctionCallOutput(call.CallID, string(ack)))
	return r.applyHandoff(ctx, h, conv)
}

// handoffByItem re-targets the loop from an explicit handoff item.
func (r *runner) handoffByItem(ctx context.Context, item Item) error {
	h, err := resolveHandoffTarget(r.agent, item.Target)
	if err != nil {
		return err
	}
	conv := append(r.conversation, item)
	return r.applyHandoff(ctx, h, conv)
}

// applyHandoff switches the active agent, filters the conversation,
// and resets the turn counter. Trace and usage carry over.
func (r *runner) applyHandoff(ctx context.Context, h Handoff, conv []Item) error {
	spanID := r.recordSpan(tracing.SpanHandoff, map[string]any{
		"from": r.agent.name,
		"to":   h.Target.name,
	})
	if h.OnHandoff != nil {
		h.OnHandoff(ctx, r.rc)
	}
	if h.Filter != nil {
		if filtered := h.Filter(conv, r.rc); filtered != nil {
			conv = filtered
		}
	}
	r.conversation = conv
	r.agent = h.Target
	r.turn = 0
	r.endSpan(spanID, "ok")
	r.logger.Info("handoff", "to", h.Target.name)
	return r.startAgent(ctx)
}

// succeed assembles the terminal result and emits the final stream
// marker.
func (r *runner) succeed(ctx context.Context, output string) RunResult {
	if r.buffer != nil {
		r.buffer.emit(ctx, StreamComplete{})
	}
	return RunResult{
		Output:     output,
		Usage:      r.rc.Usage(),
		TraceID:    r.traceID,
		ResponseID: r.responseID,
		Turns:      r.turn,
		Duration:   time.Since(r.startedAt),
		Agent:      r.agent.name,
		Items:      r.conversation,
	}
}

// recordSpan opens a span on the run's trace. Everything but the
// agent span itself nests under the active agent span.
func (r *runner) recordSpan(typ tracing.SpanType, data map[string]any) string {
	if !r.traced {
		return ""
	}
	var opts []tracing.SpanOption
	if typ != tracing.SpanAgent && r.agentSpanID != "" {
		opts = append(opts, tracing.WithParent(r.agentSpanID))
	}
	return r.reg.RecordSpan(r.traceID, typ, data, opts...)
}

func (r *runner) endSpan(spanID, result string) {
	if !r.traced || spanID == "" {
		return
	}
	r.reg.EndSpan(spanID, result)
}

func (r *runner) endTrace(result string) {
	if !r.traced {
		return
	}
	r.reg.EndTrace(r.traceID, result)
}

// classify partitions a response's output into concatenated text,
// function calls, and explicit handoff items.
func classify(items []Item) (text string, calls []Item, handoffs []Item) {
	var sb strings.Builder
	for _, it := range items {
		switch it.Type {
		case ItemText:
			sb.WriteString(it.Text)
		case ItemMessage:
			if it.Role == "" || it.Role == "assistant" {
				sb.WriteString(it.Content)
			}
		case ItemFunctionCall:
			calls = append(calls, it)
		case ItemHandoff:
			handoffs = append(handoffs, it)
		}
	}
	return sb.String(), calls, handoffs
}

// splitHandoffCalls separates handoff shim invocations from regular
// tool calls.
func splitHandoffCalls(calls []Item) (handoffCalls, toolCalls []Item) {
	for _, c := range calls {
		if isHandoffCall(c) {
			handoffCalls = append(handoffCalls, c)
		} else {
			toolCalls = append(toolCalls, c)
		}
	}
	return handoffCalls, toolCalls
}
