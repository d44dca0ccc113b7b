package responses

import (
	"encoding/json"

	relay "github.com/relay-agents/relay"
)

// ParseResponse converts a wire response into the normalised form the
// turn loop consumes.
func ParseResponse(resp Response) (relay.ModelResponse, error) {
	return relay.ModelResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		CreatedAt: resp.CreatedAt,
		Output:    ParseItems(resp.Output),
		Usage:     NormalizeUsage(resp.Usage),
	}, nil
}

// ParseItems maps wire output items to conversation items:
//
//   - message content parts of type output_text become text items
//   - message content parts of type tool_use become function calls
//   - top-level function_call and handoff items map directly
//   - anything else passes through with its declared type
func ParseItems(wire []WireItem) []relay.Item {
	items := make([]relay.Item, 0, len(wire))
	for _, wi := range wire {
		switch wi.Type {
		case "message":
			for _, part := range wi.Content {
				switch part.Type {
				case "output_text", "text", "input_text":
					items = append(items, relay.AssistantText(part.Text))
				case "tool_use":
					items = append(items, relay.FunctionCall(part.ID, part.Name, argumentsString(part.Arguments)))
				}
			}
		case "text", "output_text":
			items = append(items, relay.AssistantText(wi.Text))
		case "function_call":
			callID := wi.CallID
			if callID == "" {
				callID = wi.ID
			}
			items = append(items, relay.FunctionCall(callID, wi.Name, argumentsString(wi.Arguments)))
		case "function_call_output":
			items = append(items, relay.FunctionCallOutput(wi.CallID, wi.Output))
		case "handoff":
			items = append(items, relay.HandoffItem(wi.Target))
		default:
			raw, err := json.Marshal(wi)
			if err != nil {
				raw = nil
			}
			items = append(items, relay.Item{
				Type:      relay.ItemType(wi.Type),
				Role:      wi.Role,
				Text:      wi.Text,
				CallID:    wi.CallID,
				Name:      wi.Name,
				Arguments: argumentsString(wi.Arguments),
				Output:    wi.Output,
				Target:    wi.Target,
				Raw:       raw,
			})
		}
	}
	return items
}

// NormalizeUsage maps both wire spellings onto the canonical usage
// record. Missing fields count as zero; a missing total is derived.
func NormalizeUsage(u *Usage) relay.Usage {
	if u == nil {
		return relay.Usage{}
	}
	out := relay.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if out.PromptTokens == 0 {
		out.PromptTokens = u.InputTokens
	}
	if out.CompletionTokens == 0 {
		out.CompletionTokens = u.OutputTokens
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

// argumentsString renders a wire arguments value as a JSON text.
// Servers send either a JSON-encoded string or a bare object; both
// come out as the object's text.
func argumentsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
