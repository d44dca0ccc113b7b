// Package responses implements the relay.Model adapter for the
// OpenAI Responses API: body building, response parsing, and SSE
// streaming against POST <base>/responses.
package responses

import (
	"encoding/json"

	relay "github.com/relay-agents/relay"
)

// --- Request types ---

// Request is the Responses API request body. Unset optional fields
// are omitted from the wire JSON.
type Request struct {
	Model              string          `json:"model"`
	Instructions       string          `json:"instructions,omitempty"`
	Input              []relay.Item    `json:"input"`
	Tools              []Tool          `json:"tools,omitempty"`
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"top_p,omitempty"`
	ToolChoice         any             `json:"tool_choice,omitempty"`
	ParallelToolCalls  *bool           `json:"parallel_tool_calls,omitempty"`
	MaxOutputTokens    *int64          `json:"max_output_tokens,omitempty"`
	Stream             bool            `json:"stream,omitempty"`
	Text               *TextConfig     `json:"text,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
}

// Tool is the hybrid wire shape of a function tool: name and
// description at the top level, parameters nested under "function".
type Tool struct {
	Type        string   `json:"type"` // always "function"
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Function    Function `json:"function"`
}

// Function carries the JSON-Schema parameters of a tool.
type Function struct {
	Parameters json.RawMessage `json:"parameters"`
}

// TextConfig requests structured output.
type TextConfig struct {
	Format *TextFormat `json:"format,omitempty"`
}

// TextFormat describes the expected JSON output shape.
type TextFormat struct {
	Type   string          `json:"type"` // "json_schema"
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// --- Response types ---

// Response is the Responses API response body.
type Response struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	CreatedAt int64      `json:"created_at"`
	Usage     *Usage     `json:"usage,omitempty"`
	Output    []WireItem `json:"output"`
}

// Usage carries token counts. Servers differ on field names; both the
// input_tokens/output_tokens and prompt_tokens/completion_tokens
// spellings are accepted.
type Usage struct {
	InputTokens      int64 `json:"input_tokens,omitempty"`
	OutputTokens     int64 `json:"output_tokens,omitempty"`
	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`
}

// WireItem is one element of the wire output array. Fields cover the
// union of item shapes; only those matching Type are set.
type WireItem struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []WirePart      `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
	Target    string          `json:"target,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// WirePart is one typed block inside a message item's content array.
type WirePart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// --- Streaming types ---

// StreamEvent is one parsed SSE frame. The [DONE] sentinel is
// represented as Type "done".
type StreamEvent struct {
	Type         string    `json:"type"`
	Response     *Response `json:"response,omitempty"`
	Item         *WireItem `json:"item,omitempty"`
	ItemID       string    `json:"item_id,omitempty"`
	OutputIndex  int       `json:"output_index,omitempty"`
	ContentIndex int       `json:"content_index,omitempty"`
	Delta        string    `json:"delta,omitempty"`

	// raw keeps the original frame for Unknown passthrough.
	raw json.RawMessage
}

// Raw returns the original JSON frame this event was parsed from.
func (e StreamEvent) Raw() json.RawMessage { return e.raw }
