package relay

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrGuardrail reports an input guardrail refusing to let the run
// proceed.
type ErrGuardrail struct {
	Guardrail string
	Reason    string
	Meta      map[string]any
}

func (e *ErrGuardrail) Error() string {
	return fmt.Sprintf("input guardrail %s triggered: %s", e.Guardrail, e.Reason)
}

// ErrOutputGuardrail reports an output guardrail refusing the final
// text. Output carries the text that was refused.
type ErrOutputGuardrail struct {
	Guardrail string
	Reason    string
	Meta      map[string]any
	Output    string
}

func (e *ErrOutputGuardrail) Error() string {
	return fmt.Sprintf("output guardrail %s triggered: %s", e.Guardrail, e.Reason)
}

// ErrMaxTurns reports that the run hit its turn limit before
// producing a final output.
type ErrMaxTurns struct {
	Turns int
}

func (e *ErrMaxTurns) Error() string {
	return fmt.Sprintf("max turns exceeded after %d turns", e.Turns)
}

// ErrAPI reports a non-2xx status from the responses endpoint.
// RetryAfter carries the server's Retry-After hint when present, for
// retry middleware; zero means no hint.
type ErrAPI struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrAPI) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, either
// delay-seconds or an HTTP-date. Returns 0 when absent or
// unparseable.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrNetwork reports a transport failure talking to the endpoint.
type ErrNetwork struct {
	Err error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *ErrNetwork) Unwrap() error { return e.Err }

// ErrDecode reports a malformed JSON body or SSE frame.
type ErrDecode struct {
	Err error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *ErrDecode) Unwrap() error { return e.Err }

// ErrToolExecution reports one tool call failing. It never aborts the
// run by itself: the dispatcher serialises it into the call's
// function_call_output and the loop continues.
type ErrToolExecution struct {
	Name   string
	CallID string
	Reason string
}

func (e *ErrToolExecution) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %s", e.Name, e.CallID, e.Reason)
}

// ErrHandoff reports a handoff naming an unknown target agent.
type ErrHandoff struct {
	Reason string
}

func (e *ErrHandoff) Error() string {
	return fmt.Sprintf("handoff failed: %s", e.Reason)
}

// ErrUnexpectedResponse reports a model response with no actionable
// items.
type ErrUnexpectedResponse struct {
	Message string
}

func (e *ErrUnexpectedResponse) Error() string {
	return fmt.Sprintf("unexpected response: %s", e.Message)
}

// ErrInvalidConfig reports an agent or run configuration rejected at
// run start.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}
