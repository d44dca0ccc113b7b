// Package tracing records agent runs as traces and spans and ships
// them to an ingest endpoint in batches. It is a side channel: every
// call is cheap, non-blocking, and safe to invoke from hot paths. A
// disabled registry returns empty IDs and ignores all further calls.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relay-agents/relay/internal/config"
)

// SpanType classifies what a span measured.
type SpanType string

const (
	SpanAgent      SpanType = "agent"
	SpanFunction   SpanType = "function"
	SpanGeneration SpanType = "generation"
	SpanResponse   SpanType = "response"
	SpanHandoff    SpanType = "handoff"
	SpanGuardrail  SpanType = "guardrail"
	SpanTool       SpanType = "tool"
	SpanAPIRequest SpanType = "api_request"
)

// Trace records one run end-to-end. Spans belong to exactly one
// trace and never outlive it.
type Trace struct {
	ID      string         `json:"id"`
	GroupID string         `json:"group_id,omitempty"`
	Agent   string         `json:"agent"`
	Start   time.Time      `json:"start"`
	End     *time.Time     `json:"end,omitempty"`
	Spans   []*Span        `json:"spans"`
	Context map[string]any `json:"context,omitempty"`
	Result  string         `json:"result,omitempty"`
}

// Span records one operation inside a trace.
type Span struct {
	ID       string         `json:"id"`
	TraceID  string         `json:"trace_id"`
	ParentID string         `json:"parent_id,omitempty"`
	Type     SpanType       `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	Start    time.Time      `json:"start"`
	End      *time.Time     `json:"end,omitempty"`
	Result   string         `json:"result,omitempty"`
}

// NewTraceID returns a fresh "trace_<hex32>" identifier.
func NewTraceID() string {
	return "trace_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewGroupID returns a fresh "group_<hex32>" identifier, used to
// correlate several traces belonging to one logical workflow.
func NewGroupID() string {
	return "group_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewSpanID returns a fresh "span_<hex24>" identifier.
func NewSpanID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return "span_" + hex.EncodeToString(b)
}

// Processor observes trace and span lifecycle events. Implementations
// must return quickly; the registry calls them synchronously under
// its lock. The observer package bridges processors to OpenTelemetry.
type Processor interface {
	TraceStarted(t *Trace)
	TraceEnded(t *Trace)
	SpanStarted(s *Span)
	SpanEnded(s *Span)
}

// Registry is the serialisation point of the tracing subsystem. All
// lifecycle calls go through one mutex; ended traces are handed to
// the exporter by value.
type Registry struct {
	mu       sync.Mutex
	disabled bool
	traces   map[string]*Trace
	spans    map[string]*Span
	procs    []Processor
	exporter *BatchExporter
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExporter attaches a batch exporter that receives every ended
// trace.
func WithExporter(e *BatchExporter) RegistryOption {
	return func(r *Registry) { r.exporter = e }
}

// WithProcessors registers lifecycle observers.
func WithProcessors(procs ...Processor) RegistryOption {
	return func(r *Registry) { r.procs = append(r.procs, procs...) }
}

// WithDisabled forces the registry on or off regardless of the
// OPENAI_AGENTS_DISABLE_TRACING environment variable.
func WithDisabled(disabled bool) RegistryOption {
	return func(r *Registry) { r.disabled = disabled }
}

// WithRegistryLogger sets the structured logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a Registry. Unless overridden by WithDisabled,
// the OPENAI_AGENTS_DISABLE_TRACING environment variable decides
// whether it starts disabled.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		disabled: config.TracingDisabledFromEnv(),
		traces:   make(map[string]*Trace),
		spans:    make(map[string]*Span),
		logger:   slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry, creating it on first
// use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// SetDisabled turns the registry on or off at runtime. Calls made
// while disabled are ignored; in-flight traces are kept.
func (r *Registry) SetDisabled(disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = disabled
}

// Disabled reports whether the registry ignores lifecycle calls.
func (r *Registry) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

// RegisterProcessor adds a lifecycle observer at runtime.
func (r *Registry) RegisterProcessor(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = append(r.procs, p)
}

// TraceOption configures StartTrace.
type TraceOption func(*Trace)

// WithGroupID correlates this trace with others in the same logical
// workflow.
func WithGroupID(groupID string) TraceOption {
	return func(t *Trace) { t.GroupID = groupID }
}

// WithTraceID pins the trace identifier instead of generating one.
func WithTraceID(id string) TraceOption {
	return func(t *Trace) { t.ID = id }
}

// WithTraceContext attaches caller metadata to the trace.
func WithTraceContext(meta map[string]any) TraceOption {
	return func(t *Trace) {
		if t.Context == nil {
			t.Context = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			t.Context[k] = v
		}
	}
}

// StartTrace opens a trace for one run and returns its ID, or "" when
// tracing is disabled.
func (r *Registry) StartTrace(agent, input string, opts ...TraceOption) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return ""
	}
	t := &Trace{
		Agent: agent,
		Start: time.Now().UTC(),
		Spans: []*Span{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ID == "" {
		t.ID = NewTraceID()
	}
	if input != "" {
		if t.Context == nil {
			t.Context = make(map[string]any, 1)
		}
		t.Context["input"] = input
	}
	r.traces[t.ID] = t
	for _, p := range r.procs {
		p.TraceStarted(t)
	}
	return t.ID
}

// SpanOption configures a span at creation.
type SpanOption func(*Span)

// WithParent nests the span under an existing span of the same trace.
func WithParent(spanID string) SpanOption {
	return func(s *Span) { s.ParentID = spanID }
}

// RecordSpan opens a span under traceID and returns its ID. Unknown
// or empty trace IDs yield "" and no span.
func (r *Registry) RecordSpan(traceID string, typ SpanType, data map[string]any, opts ...SpanOption) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled || traceID == "" {
		return ""
	}
	t, ok := r.traces[traceID]
	if !ok {
		return ""
	}
	s := &Span{
		ID:      NewSpanID(),
		TraceID: traceID,
		Type:    typ,
		Data:    data,
		Start:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	t.Spans = append(t.Spans, s)
	r.spans[s.ID] = s
	for _, p := range r.procs {
		p.SpanStarted(s)
	}
	return s.ID
}

// EndSpan closes the span. Unknown or empty IDs are ignored.
func (r *Registry) EndSpan(spanID, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spanID == "" {
		return
	}
	s, ok := r.spans[spanID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	s.End = &now
	s.Result = result
	delete(r.spans, spanID)
	for _, p := range r.procs {
		p.SpanEnded(s)
	}
}

// EndTrace closes the trace and hands it to the exporter. Spans left
// open are closed with the trace. Unknown or empty IDs are ignored.
func (r *Registry) EndTrace(traceID, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if traceID == "" {
		return
	}
	t, ok := r.traces[traceID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	t.End = &now
	t.Result = result
	for _, s := range t.Spans {
		if s.End == nil {
			s.End = &now
			delete(r.spans, s.ID)
		}
	}
	delete(r.traces, traceID)
	for _, p := range r.procs {
		p.TraceEnded(t)
	}
	if r.exporter != nil {
		if !r.exporter.Enqueue(*t) {
			r.logger.Warn("trace dropped, export queue full", "trace_id", t.ID)
		}
	}
}

// Package-level shorthands operating on the Default registry.

// StartTrace opens a trace on the default registry.
func StartTrace(agent, input string, opts ...TraceOption) string {
	return Default().StartTrace(agent, input, opts...)
}

// RecordSpan opens a span on the default registry.
func RecordSpan(traceID string, typ SpanType, data map[string]any, opts ...SpanOption) string {
	return Default().RecordSpan(traceID, typ, data, opts...)
}

// EndSpan closes a span on the default registry.
func EndSpan(spanID, result string) {
	Default().EndSpan(spanID, result)
}

// EndTrace closes a trace on the default registry.
func EndTrace(traceID, result string) {
	Default().EndTrace(traceID, result)
}

type discardHandler struct{}

func (discardHandler) Enabled(ctx context.Context, level slog.Level) bool  { return false }
func (discardHandler) Handle(ctx context.Context, rec slog.Record) error   { return nil }
func (discardHandler) WithAttrs(attrs []slog.Attr) slog.Handler            { return discardHandler{} }
func (discardHandler) WithGroup(name string) slog.Handler                  { return discardHandler{} }
