package relay

import (
	"encoding/json"
	"fmt"
)

// Event is one element of a streaming run. The set of variants is
// closed: consumers switch on the concrete type. Wire events the
// engine does not recognise surface as Unknown.
type Event interface {
	eventType() string
}

// ResponseCreated signals that the server accepted the request and
// opened a response.
type ResponseCreated struct {
	ResponseID string `json:"response_id"`
	Model      string `json:"model"`
	CreatedAt  int64  `json:"created_at"`
}

// TextDelta carries an incremental fragment of assistant text.
type TextDelta struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// FunctionCallArgumentsDelta carries an incremental fragment of a
// function call's JSON arguments.
type FunctionCallArgumentsDelta struct {
	CallID string `json:"call_id"`
	Delta  string `json:"delta"`
	Index  int    `json:"index"`
}

// ToolCall signals that the model opened a function call.
type ToolCall struct {
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments,omitempty"`
}

// ResponseCompleted signals that one model call finished, carrying
// the usage it consumed.
type ResponseCompleted struct {
	Usage   Usage  `json:"usage"`
	TraceID string `json:"trace_id,omitempty"`
}

// StreamComplete is the final event of a successful streaming run.
type StreamComplete struct{}

// UsageUpdate reports the aggregate usage after a tool-continuation
// turn.
type UsageUpdate struct {
	Usage Usage `json:"usage"`
}

// Unknown wraps a wire event the engine does not recognise.
type Unknown struct {
	Raw json.RawMessage `json:"raw"`
}

func (ResponseCreated) eventType() string            { return "response_created" }
func (TextDelta) eventType() string                  { return "text_delta" }
func (FunctionCallArgumentsDelta) eventType() string { return "function_call_arguments_delta" }
func (ToolCall) eventType() string                   { return "tool_call" }
func (ResponseCompleted) eventType() string          { return "response_completed" }
func (StreamComplete) eventType() string             { return "stream_complete" }
func (UsageUpdate) eventType() string                { return "usage_update" }
func (Unknown) eventType() string                    { return "unknown" }

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent serialises e for trace payloads and transcripts.
// DecodeEvent inverts it.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Type: e.eventType(), Data: data})
}

// DecodeEvent parses an envelope produced by EncodeEvent.
func DecodeEvent(b []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	var e Event
	switch env.Type {
	case "response_created":
		var v ResponseCreated
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "text_delta":
		var v TextDelta
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "function_call_arguments_delta":
		var v FunctionCallArgumentsDelta
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "tool_call":
		var v ToolCall
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "response_completed":
		var v ResponseCompleted
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "stream_complete":
		e = StreamComplete{}
	case "usage_update":
		var v UsageUpdate
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	case "unknown":
		var v Unknown
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		e = v
	default:
		return nil, fmt.Errorf("unrecognised event type %q", env.Type)
	}
	return e, nil
}
