package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// stubTurn scripts one model call: the response to return, the events
// to push first when streaming, and an optional error.
type stubTurn struct {
	resp   ModelResponse
	events []Event
	err    error
	delay  time.Duration
}

// stubModel replays scripted turns in order and records every request
// it receives. Safe for concurrent use.
type stubModel struct {
	name  string
	turns []stubTurn

	mu       sync.Mutex
	calls    int
	requests []ModelRequest
}

func (m *stubModel) Name() string {
	if m.name == "" {
		return "stub"
	}
	return m.name
}

func (m *stubModel) next(req ModelRequest) (stubTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.calls >= len(m.turns) {
		return stubTurn{}, fmt.Errorf("stub model: unexpected call %d", m.calls+1)
	}
	turn := m.turns[m.calls]
	m.calls++
	return turn, nil
}

func (m *stubModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *stubModel) request(i int) ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func (m *stubModel) Complete(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	turn, err := m.next(req)
	if err != nil {
		return ModelResponse{}, err
	}
	if err := sleepTurn(ctx, turn.delay); err != nil {
		return ModelResponse{}, err
	}
	return turn.resp, turn.err
}

func (m *stubModel) StreamComplete(ctx context.Context, req ModelRequest, ch chan<- Event) (ModelResponse, error) {
	defer close(ch)
	turn, err := m.next(req)
	if err != nil {
		return ModelResponse{}, err
	}
	if err := sleepTurn(ctx, turn.delay); err != nil {
		return ModelResponse{}, err
	}
	for _, e := range turn.events {
		select {
		case ch <- e:
		case <-ctx.Done():
			return ModelResponse{}, ctx.Err()
		}
	}
	return turn.resp, turn.err
}

func sleepTurn(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// textResponse builds a one-item text response with the given usage.
func textResponse(text string, usage Usage) ModelResponse {
	return ModelResponse{
		ID:     "resp_" + text,
		Output: []Item{AssistantText(text)},
		Usage:  usage,
	}
}

// callResponse builds a response consisting of function calls only.
func callResponse(calls ...Item) ModelResponse {
	return ModelResponse{ID: "resp_calls", Output: calls}
}

// echoTool returns its arguments prefixed with its name.
type echoTool struct {
	name  string
	delay time.Duration
}

func (t echoTool) Name() string                    { return t.name }
func (t echoTool) Description() string             { return "echoes arguments" }
func (t echoTool) Parameters() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (t echoTool) Execute(ctx context.Context, args json.RawMessage, _ ToolContext) (string, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return t.name + ":" + string(args), nil
}

// failTool always fails.
type failTool struct{ name string }

func (t failTool) Name() string                { return t.name }
func (t failTool) Description() string         { return "always fails" }
func (t failTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t failTool) Execute(context.Context, json.RawMessage, ToolContext) (string, error) {
	return "", fmt.Errorf("tool broken")
}

// panicTool always panics.
type panicTool struct{ name string }

func (t panicTool) Name() string                { return t.name }
func (t panicTool) Description() string         { return "always panics" }
func (t panicTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t panicTool) Execute(context.Context, json.RawMessage, ToolContext) (string, error) {
	panic("tool exploded")
}

// sleepTool blocks until its context is done, ignoring the timeout
// budget entirely.
type sleepTool struct{ name string }

func (t sleepTool) Name() string                { return t.name }
func (t sleepTool) Description() string         { return "sleeps forever" }
func (t sleepTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t sleepTool) Execute(ctx context.Context, _ json.RawMessage, _ ToolContext) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// addTool builds an add(a,b) function tool with a reflected schema,
// used by the end-to-end tests.
func addTool() Tool {
	type addArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	return NewFunctionTool("add", "Add two integers.",
		func(_ context.Context, args json.RawMessage, _ ToolContext) (string, error) {
			var in addArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			out, _ := json.Marshal(map[string]int{"sum": in.A + in.B})
			return string(out), nil
		},
		WithParametersFrom(addArgs{}),
	)
}

// runOpts prepends the stub model to the given options.
func runOpts(m Model, opts ...RunOption) []RunOption {
	return append([]RunOption{WithDefaultModel(m), WithTracingDisabled()}, opts...)
}
