package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// maxParallelTools caps the number of concurrent tool call goroutines
// to avoid overwhelming external services with unbounded parallelism.
const maxParallelTools = 10

// defaultToolTimeout bounds a single tool invocation.
const defaultToolTimeout = 30 * time.Second

// toolOutcome is the result of executing one function call.
type toolOutcome struct {
	call     Item
	output   string
	duration time.Duration
	err      *ErrToolExecution
}

// item converts the outcome into the function_call_output fed back to
// the model. Failures are serialised as {"error": reason} so the model
// can recover.
func (o toolOutcome) item() Item {
	if o.err != nil {
		b, _ := json.Marshal(map[string]string{"error": o.err.Reason})
		return FunctionCallOutput(o.call.CallID, string(b))
	}
	return FunctionCallOutput(o.call.CallID, o.output)
}

// indexedOutcome pairs a tool outcome with its position in the
// original call slice, allowing channel-based collection in order.
type indexedOutcome struct {
	idx     int
	outcome toolOutcome
}

// dispatchTools executes every function call against the agent's
// tools and returns one outcome per call in the original input order.
// Calls in a batch run concurrently through a fixed worker pool;
// parallelism never reorders results. A failing, panicking, or
// timed-out call produces an error outcome for that call only.
func dispatchTools(ctx context.Context, calls []Item, tools map[string]Tool, rc *RunContext, timeout time.Duration, logger *slog.Logger) []toolOutcome {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}

	// Fast path: single call, no pool needed.
	if len(calls) == 1 {
		return []toolOutcome{executeCall(ctx, calls[0], tools, rc, timeout, logger)}
	}

	type workItem struct {
		idx  int
		call Item
	}
	workCh := make(chan workItem, len(calls))
	for i, c := range calls {
		workCh <- workItem{i, c}
	}
	close(workCh)

	resultCh := make(chan indexedOutcome, len(calls))
	numWorkers := min(len(calls), maxParallelTools)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedOutcome{w.idx, cancelledOutcome(w.call, ctx.Err())}
					continue
				}
				resultCh <- indexedOutcome{w.idx, executeCall(ctx, w.call, tools, rc, timeout, logger)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Collect results, bailing out if ctx is cancelled while calls
	// are still in-flight.
	results := make([]toolOutcome, len(calls))
	seen := make([]bool, len(calls))
collect:
	for received := 0; received < len(calls); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			results[r.idx] = r.outcome
			seen[r.idx] = true
		case <-ctx.Done():
			for i := range results {
				if !seen[i] {
					results[i] = cancelledOutcome(calls[i], ctx.Err())
				}
			}
			return results
		}
	}
	for i := range results {
		if !seen[i] {
			results[i] = cancelledOutcome(calls[i], fmt.Errorf("result not received"))
		}
	}
	return results
}

func cancelledOutcome(call Item, err error) toolOutcome {
	return toolOutcome{
		call: call,
		err:  &ErrToolExecution{Name: call.Name, CallID: call.CallID, Reason: err.Error()},
	}
}

// executeCall resolves and runs one function call with a per-call
// deadline. The handler runs on its own goroutine so a tool that
// ignores its context still cannot stall the batch past the timeout.
func executeCall(ctx context.Context, call Item, tools map[string]Tool, rc *RunContext, timeout time.Duration, logger *slog.Logger) toolOutcome {
	start := time.Now()
	tool, ok := tools[call.Name]
	if !ok {
		return toolOutcome{
			call:     call,
			duration: time.Since(start),
			err:      &ErrToolExecution{Name: call.Name, CallID: call.CallID, Reason: "unknown tool: " + call.Name},
		}
	}

	args := json.RawMessage(call.Arguments)
	if !json.Valid(args) {
		args = json.RawMessage(`{}`)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		output string
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				resCh <- result{err: fmt.Errorf("tool %q panic: %v", call.Name, p)}
			}
		}()
		out, err := tool.Execute(callCtx, args, rc)
		resCh <- result{output: out, err: err}
	}()

	var res result
	select {
	case res = <-resCh:
	case <-callCtx.Done():
		reason := "timeout"
		if callCtx.Err() != context.DeadlineExceeded {
			reason = callCtx.Err().Error()
		}
		logger.Warn("tool call aborted", "tool", call.Name, "call_id", call.CallID, "reason", reason)
		return toolOutcome{
			call:     call,
			duration: time.Since(start),
			err:      &ErrToolExecution{Name: call.Name, CallID: call.CallID, Reason: reason},
		}
	}

	if res.err != nil {
		reason := res.err.Error()
		if et, ok := tool.(ErrorTransformer); ok {
			reason = et.TransformError(res.err)
		}
		logger.Warn("tool call failed", "tool", call.Name, "call_id", call.CallID, "error", reason)
		return toolOutcome{
			call:     call,
			duration: time.Since(start),
			err:      &ErrToolExecution{Name: call.Name, CallID: call.CallID, Reason: reason},
		}
	}
	return toolOutcome{call: call, output: res.output, duration: time.Since(start)}
}
