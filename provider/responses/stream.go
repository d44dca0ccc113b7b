package responses

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	relay "github.com/relay-agents/relay"
)

// ReadSSE parses a Server-Sent-Events body frame by frame and hands
// each parsed event to handle. "data:" lines accumulate until a blank
// line terminates the frame; multi-line payloads join with newlines.
// The literal payload "[DONE]" arrives as an event of type "done".
// Malformed frames are skipped. A non-nil error from handle stops the
// read and is returned as-is.
//
// SSE format expected:
//
//	data: {"type":"response.output_text.delta","delta":"hi"}\n
//	\n
//	data: [DONE]\n
func ReadSSE(ctx context.Context, body io.Reader, handle func(ev StreamEvent) error) error {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var data []string
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.TrimSpace(strings.Join(data, "\n"))
		data = data[:0]
		if payload == "" {
			return nil
		}
		if payload == "[DONE]" {
			return handle(StreamEvent{Type: "done"})
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Skip malformed frames.
			return nil
		}
		ev.raw = json.RawMessage(payload)
		return handle(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
		// Other SSE fields (event:, id:, retry:) carry nothing here.
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// Flush a trailing frame that ended without a blank line.
	return flush()
}

// accumulator folds a stream of wire events into the final response.
// When the server ships a full response inside response.completed,
// that wins; otherwise the response is rebuilt from accumulated text
// deltas and function calls in arrival order.
type accumulator struct {
	id        string
	model     string
	createdAt int64
	usage     relay.Usage
	final     *Response

	text  strings.Builder
	calls []partialCall
}

type partialCall struct {
	itemID string
	callID string
	name   string
	args   strings.Builder
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

func (a *accumulator) ingest(ev StreamEvent) {
	switch ev.Type {
	case "response.created":
		if ev.Response != nil {
			a.id = ev.Response.ID
			a.model = ev.Response.Model
			a.createdAt = ev.Response.CreatedAt
		}

	case "response.output_text.delta":
		a.text.WriteString(ev.Delta)

	case "response.output_item.added":
		if ev.Item == nil || ev.Item.Type != "function_call" {
			return
		}
		pc := partialCall{
			itemID: ev.Item.ID,
			callID: ev.Item.CallID,
			name:   ev.Item.Name,
		}
		if pc.callID == "" {
			pc.callID = ev.Item.ID
		}
		pc.args.WriteString(argumentsString(ev.Item.Arguments))
		a.calls = append(a.calls, pc)

	case "response.function_call_arguments.delta":
		for i := range a.calls {
			if a.calls[i].itemID == ev.ItemID || a.calls[i].callID == ev.ItemID {
				a.calls[i].args.WriteString(ev.Delta)
				return
			}
		}
		// Delta for a call the stream never announced: register it so
		// the arguments are not lost.
		pc := partialCall{itemID: ev.ItemID, callID: ev.ItemID}
		pc.args.WriteString(ev.Delta)
		a.calls = append(a.calls, pc)

	case "response.completed", "response.done":
		if ev.Response != nil {
			a.usage = NormalizeUsage(ev.Response.Usage)
			if len(ev.Response.Output) > 0 {
				resp := *ev.Response
				a.final = &resp
			}
			if a.id == "" {
				a.id = ev.Response.ID
			}
			if a.model == "" {
				a.model = ev.Response.Model
			}
			if a.createdAt == 0 {
				a.createdAt = ev.Response.CreatedAt
			}
		}
	}
}

// fold returns the turn's response once the stream has ended.
func (a *accumulator) fold() relay.ModelResponse {
	if a.final != nil {
		resp, _ := ParseResponse(*a.final)
		if resp.Usage.IsZero() {
			resp.Usage = a.usage
		}
		return resp
	}

	var output []relay.Item
	if a.text.Len() > 0 {
		output = append(output, relay.AssistantText(a.text.String()))
	}
	for i := range a.calls {
		args := a.calls[i].args.String()
		if args == "" || !json.Valid([]byte(args)) {
			args = "{}"
		}
		output = append(output, relay.FunctionCall(a.calls[i].callID, a.calls[i].name, args))
	}
	return relay.ModelResponse{
		ID:        a.id,
		Model:     a.model,
		CreatedAt: a.createdAt,
		Output:    output,
		Usage:     a.usage,
	}
}
