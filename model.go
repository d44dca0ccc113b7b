package relay

import (
	"context"
	"encoding/json"
)

// ModelSettings tunes sampling and tool behaviour for an agent's
// model calls. Nil pointer fields are left to the server default and
// omitted from the wire request.
type ModelSettings struct {
	Temperature       *float64
	TopP              *float64
	ToolChoice        ToolChoice
	ParallelToolCalls *bool
	// MaxTokens is forwarded unchanged when set; the engine itself
	// never caps generation.
	MaxTokens *int64
}

// ToolChoice selects how the model may use the tools it is given.
// The zero value leaves the choice to the server.
type ToolChoice struct {
	Mode         string
	FunctionName string
}

// Predefined tool choices.
var (
	ToolChoiceAuto = ToolChoice{Mode: "auto"}
	ToolChoiceNone = ToolChoice{Mode: "none"}
)

// ToolChoiceFunction forces the model to call the named function.
func ToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{Mode: "function", FunctionName: name}
}

// ToolDefinition is the schema of one callable function as presented
// to the model. Parameters is a JSON-Schema document forwarded
// verbatim.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// OutputSchema declares the JSON shape the agent's final answer must
// satisfy. Name may be dotted (e.g. a Go type path); the adapter uses
// its last component as the wire format name. Schema is forwarded
// verbatim, never interpreted.
type OutputSchema struct {
	Name   string
	Schema json.RawMessage
}

// ModelRequest is the normalised request one turn sends to a Model.
type ModelRequest struct {
	// Model overrides the implementation's default model name when
	// non-empty.
	Model              string
	Instructions       string
	Input              []Item
	Tools              []ToolDefinition
	Settings           ModelSettings
	OutputSchema       *OutputSchema
	PreviousResponseID string
}

// ModelResponse is the normalised result of one model call.
type ModelResponse struct {
	ID        string
	Model     string
	CreatedAt int64
	Output    []Item
	Usage     Usage
}

// Model produces completions for the turn loop.
//
// Complete performs one blocking call and returns the full response.
//
// StreamComplete pushes normalised events into ch as the wire
// delivers them and returns the response accumulated from the stream.
// Implementations must close ch on every return path; the runner
// relies on the close to join its forwarding goroutine.
type Model interface {
	Name() string
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
	StreamComplete(ctx context.Context, req ModelRequest, ch chan<- Event) (ModelResponse, error)
}
