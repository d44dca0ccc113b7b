package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// HandoffPrefix is the name prefix of the synthetic function tools
// that expose handoff targets to the model.
const HandoffPrefix = "handoff_to_"

// InputFilter transforms the conversation before a handoff target
// sees it. Returning nil keeps the conversation unchanged.
type InputFilter func(items []Item, rc *RunContext) []Item

// Handoff declares that an agent may transfer the run to Target. The
// target is exposed to the model as a function tool named
// "handoff_to_<target-name>"; invoking it re-targets the turn loop.
type Handoff struct {
	// Target is the agent that receives the run. Required.
	Target *Agent

	// Description overrides the generated tool description shown to
	// the model.
	Description string

	// Parameters overrides the default {input: string} JSON schema of
	// the synthetic tool.
	Parameters json.RawMessage

	// Filter reduces or transforms the conversation before the target
	// sees it.
	Filter InputFilter

	// OnHandoff is notified just before the runner switches agents.
	OnHandoff func(ctx context.Context, rc *RunContext)
}

// HandoffTo wraps target in a Handoff with default settings.
func HandoffTo(target *Agent) Handoff {
	return Handoff{Target: target}
}

var defaultHandoffParameters = json.RawMessage(`{"type":"object","properties":{"input":{"type":"string","description":"Context to carry over to the next agent."}},"additionalProperties":false}`)

// toolName derives the synthetic tool name from the target's name.
func (h Handoff) toolName() string {
	return HandoffPrefix + sanitizeAgentName(h.Target.Name())
}

// definition renders the handoff as a function tool for the request
// tool list.
func (h Handoff) definition() ToolDefinition {
	desc := h.Description
	if desc == "" {
		desc = fmt.Sprintf("Transfer the conversation to agent %q.", h.Target.Name())
	}
	params := h.Parameters
	if len(params) == 0 {
		params = defaultHandoffParameters
	}
	return ToolDefinition{
		Name:        h.toolName(),
		Description: desc,
		Parameters:  params,
	}
}

// sanitizeAgentName lowercases name and collapses runs of
// non-alphanumeric characters into single underscores, so "Spanish
// Agent" becomes "spanish_agent".
func sanitizeAgentName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isHandoffCall reports whether item is a function call targeting a
// handoff shim.
func isHandoffCall(item Item) bool {
	return item.Type == ItemFunctionCall && strings.HasPrefix(item.Name, HandoffPrefix)
}

// resolveHandoffCall finds the handoff whose synthetic tool name
// exactly matches name.
func resolveHandoffCall(agent *Agent, name string) (Handoff, error) {
	for _, h := range agent.handoffs {
		if h.Target != nil && h.toolName() == name {
			return h, nil
		}
	}
	return Handoff{}, &ErrHandoff{Reason: fmt.Sprintf("unknown handoff target %q", name)}
}

// resolveHandoffTarget finds the handoff for an explicit handoff item
// by agent name. Exact match is preferred; a sanitized match covers
// models that echo the tool-style name.
func resolveHandoffTarget(agent *Agent, target string) (Handoff, error) {
	for _, h := range agent.handoffs {
		if h.Target != nil && h.Target.Name() == target {
			return h, nil
		}
	}
	for _, h := range agent.handoffs {
		if h.Target != nil && sanitizeAgentName(h.Target.Name()) == sanitizeAgentName(target) {
			return h, nil
		}
	}
	return Handoff{}, &ErrHandoff{Reason: fmt.Sprintf("unknown handoff target %q", target)}
}

// handoffToolDefs renders all of the agent's handoffs as function
// tool definitions.
func handoffToolDefs(agent *Agent) []ToolDefinition {
	if len(agent.handoffs) == 0 {
		return nil
	}
	defs := make([]ToolDefinition, 0, len(agent.handoffs))
	for _, h := range agent.handoffs {
		if h.Target == nil {
			continue
		}
		defs = append(defs, h.definition())
	}
	return defs
}
