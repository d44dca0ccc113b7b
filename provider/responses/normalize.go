package responses

import (
	relay "github.com/relay-agents/relay"
)

// NormalizeEvent maps one wire SSE event onto the engine's event set.
// A nil result means the event carries nothing the consumer needs
// (progress markers, done acknowledgements) and is suppressed.
func NormalizeEvent(ev StreamEvent) relay.Event {
	switch ev.Type {
	case "response.created":
		out := relay.ResponseCreated{}
		if ev.Response != nil {
			out.ResponseID = ev.Response.ID
			out.Model = ev.Response.Model
			out.CreatedAt = ev.Response.CreatedAt
		}
		return out

	case "response.in_progress":
		return nil

	case "response.output_text.delta":
		return relay.TextDelta{Text: ev.Delta, Index: ev.ContentIndex}

	case "response.function_call_arguments.delta":
		return relay.FunctionCallArgumentsDelta{
			CallID: ev.ItemID,
			Delta:  ev.Delta,
			Index:  ev.OutputIndex,
		}

	case "response.function_call_arguments.done":
		return nil

	case "response.output_item.added":
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return nil
		}
		callID := ev.Item.CallID
		if callID == "" {
			callID = ev.Item.ID
		}
		return relay.ToolCall{
			Name:      ev.Item.Name,
			CallID:    callID,
			Arguments: argumentsString(ev.Item.Arguments),
		}

	case "response.output_item.done":
		return nil

	case "response.completed", "response.done":
		out := relay.ResponseCompleted{}
		if ev.Response != nil {
			out.Usage = NormalizeUsage(ev.Response.Usage)
		}
		return out

	case "done":
		return relay.StreamComplete{}

	default:
		return relay.Unknown{Raw: ev.raw}
	}
}
