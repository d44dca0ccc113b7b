package relay

import (
	"context"
	"fmt"
	"log/slog"
)

// InstructionsFunc resolves the system instructions per run. When set
// via WithInstructionsFunc, it is called at the start of every agent
// activation and its result replaces the static WithInstructions
// value for that activation.
type InstructionsFunc func(ctx context.Context, rc *RunContext, agent *Agent) (string, error)

// StartHook runs when an agent is activated: once at the start of a
// run and again after every handoff into the agent. A returned error
// terminates the run.
type StartHook func(ctx context.Context, rc *RunContext, agent *Agent) error

// EndHook runs when the run terminates while this agent is active, on
// success and failure alike. runErr is the run's terminal error, nil
// on success. An error returned from the hook fails an otherwise
// successful run; it never masks an existing failure.
type EndHook func(ctx context.Context, rc *RunContext, agent *Agent, runErr error) error

// Agent is an immutable bundle of model configuration: instructions,
// tools, handoff targets, guardrails, and an optional output schema.
// Agents are cheap to build and safe to share between concurrent runs.
type Agent struct {
	name             string
	instructions     string
	instructionsFunc InstructionsFunc
	model            Model
	settings         *ModelSettings
	tools            []Tool
	handoffs         []Handoff
	inputGuardrails  []InputGuardrail
	outputGuardrails []OutputGuardrail
	outputSchema     *OutputSchema
	onStart          StartHook
	onEnd            EndHook
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithInstructions sets the static system instructions.
func WithInstructions(s string) AgentOption {
	return func(a *Agent) { a.instructions = s }
}

// WithInstructionsFunc sets a per-run instructions resolver. It takes
// precedence over WithInstructions.
func WithInstructionsFunc(fn InstructionsFunc) AgentOption {
	return func(a *Agent) { a.instructionsFunc = fn }
}

// WithModel sets the model adapter used for this agent's turns. When
// unset, the run-level default model applies.
func WithModel(m Model) AgentOption {
	return func(a *Agent) { a.model = m }
}

// WithModelSettings sets sampling parameters forwarded with every
// request issued for this agent.
func WithModelSettings(s ModelSettings) AgentOption {
	return func(a *Agent) { a.settings = &s }
}

// WithTools adds function tools to the agent.
func WithTools(tools ...Tool) AgentOption {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithHandoffs adds handoff targets, exposed to the model as
// synthetic "handoff_to_*" tools.
func WithHandoffs(handoffs ...Handoff) AgentOption {
	return func(a *Agent) { a.handoffs = append(a.handoffs, handoffs...) }
}

// WithHandoffAgents adds handoff targets with default settings.
// Shorthand for WithHandoffs(HandoffTo(a), ...).
func WithHandoffAgents(targets ...*Agent) AgentOption {
	return func(a *Agent) {
		for _, t := range targets {
			a.handoffs = append(a.handoffs, HandoffTo(t))
		}
	}
}

// WithInputGuardrails adds guardrails run against the latest user
// input before every model call.
func WithInputGuardrails(guards ...InputGuardrail) AgentOption {
	return func(a *Agent) { a.inputGuardrails = append(a.inputGuardrails, guards...) }
}

// WithOutputGuardrails adds guardrails run against the final output
// before the run returns.
func WithOutputGuardrails(guards ...OutputGuardrail) AgentOption {
	return func(a *Agent) { a.outputGuardrails = append(a.outputGuardrails, guards...) }
}

// WithOutputSchema requests structured output conforming to the given
// JSON schema. See OutputSchemaFor to derive one from a Go type.
func WithOutputSchema(schema OutputSchema) AgentOption {
	return func(a *Agent) { a.outputSchema = &schema }
}

// WithOnStart sets a hook invoked when the agent is activated, at run
// start and after each handoff into the agent.
func WithOnStart(hook StartHook) AgentOption {
	return func(a *Agent) { a.onStart = hook }
}

// WithOnEnd sets a hook invoked when the run terminates while this
// agent is active, after output guardrails, on both success and
// failure.
func WithOnEnd(hook EndHook) AgentOption {
	return func(a *Agent) { a.onEnd = hook }
}

// New creates an Agent.
func New(name string, opts ...AgentOption) (*Agent, error) {
	if name == "" {
		return nil, &ErrInvalidConfig{Field: "name", Reason: "must not be empty"}
	}
	a := &Agent{name: name}
	for _, opt := range opts {
		opt(a)
	}
	seen := make(map[string]bool, len(a.tools))
	for _, t := range a.tools {
		if t == nil || t.Name() == "" {
			return nil, &ErrInvalidConfig{Field: "tools", Reason: "tool with empty name"}
		}
		if seen[t.Name()] {
			return nil, &ErrInvalidConfig{Field: "tools", Reason: fmt.Sprintf("duplicate tool %q", t.Name())}
		}
		seen[t.Name()] = true
	}
	for _, h := range a.handoffs {
		if h.Target == nil {
			return nil, &ErrInvalidConfig{Field: "handoffs", Reason: "handoff with nil target"}
		}
	}
	if a.outputSchema != nil && a.outputSchema.Name == "" {
		return nil, &ErrInvalidConfig{Field: "output_schema", Reason: "schema name must not be empty"}
	}
	return a, nil
}

// MustNew is New but panics on configuration errors. Intended for
// package-level agent variables.
func MustNew(name string, opts ...AgentOption) *Agent {
	a, err := New(name, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Name returns the agent's identifier.
func (a *Agent) Name() string { return a.name }

// toolMap builds the name to tool lookup used by the dispatcher.
func (a *Agent) toolMap() map[string]Tool {
	m := make(map[string]Tool, len(a.tools))
	for _, t := range a.tools {
		m[t.Name()] = t
	}
	return m
}

// resolveInstructions returns the effective instructions for one
// activation. A panicking resolver terminates the run like an error.
func (a *Agent) resolveInstructions(ctx context.Context, rc *RunContext) (out string, err error) {
	if a.instructionsFunc == nil {
		return a.instructions, nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("instructions func panic: %v", p)
		}
	}()
	return a.instructionsFunc(ctx, rc, a)
}

// toolDefinitions renders the agent's tools plus handoff shims for
// the request tool list.
func (a *Agent) toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(a.tools)+len(a.handoffs))
	for _, t := range a.tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	defs = append(defs, handoffToolDefs(a)...)
	return defs
}

// nopLogger discards all records. Used when no logger is configured.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool   { return false }
func (discardHandler) Handle(context.Context, slog.Record) error  { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler         { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler              { return discardHandler{} }
