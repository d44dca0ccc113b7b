package relay

import "encoding/json"

// ItemType tags a conversation item.
type ItemType string

// Item types the engine acts on. Wire items with other types are
// carried through untouched.
const (
	ItemMessage            ItemType = "message"
	ItemText               ItemType = "text"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
	ItemHandoff            ItemType = "handoff"
)

// Item is one element of a conversation: a message, a piece of
// assistant text, a function call, its output, or a handoff marker.
// Only the fields relevant to Type are set. Items are append-only;
// the engine never mutates one after creating it.
type Item struct {
	Type      ItemType `json:"type"`
	Role      string   `json:"role,omitempty"`
	Content   string   `json:"content,omitempty"`
	Text      string   `json:"text,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
	Target    string   `json:"target,omitempty"`

	// Raw preserves the wire payload of items the engine does not
	// recognise, so they survive a round trip unchanged.
	Raw json.RawMessage `json:"-"`
}

// UserMessage builds a message item carrying user text.
func UserMessage(content string) Item {
	return Item{Type: ItemMessage, Role: "user", Content: content}
}

// AssistantMessage builds a message item carrying assistant text.
func AssistantMessage(content string) Item {
	return Item{Type: ItemMessage, Role: "assistant", Content: content}
}

// AssistantText builds a normalised assistant text output item.
func AssistantText(text string) Item {
	return Item{Type: ItemText, Text: text}
}

// FunctionCall builds a function_call item as the model would emit it.
func FunctionCall(callID, name, arguments string) Item {
	return Item{Type: ItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

// FunctionCallOutput builds the result item for a prior function call.
func FunctionCallOutput(callID, output string) Item {
	return Item{Type: ItemFunctionCallOutput, CallID: callID, Output: output}
}

// HandoffItem builds a handoff marker naming the target agent.
func HandoffItem(target string) Item {
	return Item{Type: ItemHandoff, Target: target}
}

// Input is the initial conversation for a run: either a plain user
// prompt or an explicit item sequence.
type Input struct {
	text  string
	items []Item
	many  bool
}

// Text wraps a user prompt as run input. It becomes a single
// message{role:"user"} item.
func Text(s string) Input {
	return Input{text: s}
}

// Items uses the given conversation verbatim as run input.
func Items(items ...Item) Input {
	return Input{items: items, many: true}
}

// normalize expands the input into the starting conversation.
func (in Input) normalize() []Item {
	if in.many {
		out := make([]Item, len(in.items))
		copy(out, in.items)
		return out
	}
	return []Item{UserMessage(in.text)}
}

// latestUserText returns the content of the most recent user message,
// or "" when the conversation has none. Input guardrails validate
// this text each turn.
func latestUserText(items []Item) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Type == ItemMessage && items[i].Role == "user" {
			return items[i].Content
		}
	}
	return ""
}
