package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// RunState represents the execution state of a background run.
type RunState int32

const (
	// RunPending indicates the run has been created but not started.
	RunPending RunState = iota
	// RunRunning indicates the turn loop is in progress.
	RunRunning
	// RunCompleted indicates the run finished successfully.
	RunCompleted
	// RunFailed indicates the run returned an error.
	RunFailed
	// RunCancelled indicates the run was cancelled via Cancel() or
	// the parent context.
	RunCancelled
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state is a final state
// (completed, failed, or cancelled).
func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunHandle tracks a background run.
// All methods are safe for concurrent use.
type RunHandle struct {
	id     string
	agent  *Agent
	state  atomic.Int32
	result RunResult
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// spawnRun launches r.run in a background goroutine and returns a
// handle for tracking, awaiting, and cancelling. A positive timeout
// bounds the run end-to-end.
func spawnRun(ctx context.Context, r *runner, timeout time.Duration) *RunHandle {
	logger := r.logger

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	h := &RunHandle{
		id:     newRunID(),
		agent:  r.agent,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	h.state.Store(int32(RunPending))

	logger.Info("run started", "agent", r.agent.name, "run_id", h.id, "trace_id", r.traceID)

	go func() {
		defer cancel() // release context resources on completion
		defer func() {
			if p := recover(); p != nil {
				logger.Error("run panic", "agent", h.agent.name, "run_id", h.id, "panic", fmt.Sprintf("%v", p))
				h.result = RunResult{}
				h.err = fmt.Errorf("run panic: %v", p)
				h.state.Store(int32(RunFailed))
				close(h.done)
			}
		}()
		h.state.Store(int32(RunRunning))
		start := time.Now()
		result, err := r.run(ctx)

		// Write result/err before close(done). The channel close is the
		// happens-before barrier: all readers (<-h.done in Await, State,
		// Result) are guaranteed to see these writes after the close.
		h.result = result
		h.err = err
		if ctx.Err() != nil && err != nil {
			h.state.Store(int32(RunCancelled))
			logger.Info("run cancelled", "agent", h.agent.name, "run_id", h.id, "duration", time.Since(start))
		} else if err != nil {
			h.state.Store(int32(RunFailed))
			logger.Error("run failed", "agent", h.agent.name, "run_id", h.id, "error", err, "duration", time.Since(start))
		} else {
			h.state.Store(int32(RunCompleted))
			logger.Info("run completed", "agent", h.agent.name, "run_id", h.id,
				"duration", time.Since(start),
				"turns", result.Turns,
				"tokens.prompt", result.Usage.PromptTokens,
				"tokens.completion", result.Usage.CompletionTokens)
		}
		close(h.done)
	}()

	return h
}

// ID returns the unique run identifier (UUIDv7-based, time-sortable).
func (h *RunHandle) ID() string { return h.id }

// Agent returns the agent the run started with.
func (h *RunHandle) Agent() *Agent { return h.agent }

// State returns the current run state.
// If the state is terminal, State blocks until Done() is closed
// (nanoseconds) to guarantee that Result() returns valid data when
// State().IsTerminal() is true.
func (h *RunHandle) State() RunState {
	s := RunState(h.state.Load())
	if s.IsTerminal() {
		<-h.done
	}
	return s
}

// Done returns a channel closed when the run finishes (any terminal
// state). Composable with select for multiplexing multiple handles.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Await blocks until the run completes or ctx is cancelled.
// Returns the run's result and error on completion.
// Returns a zero RunResult and ctx.Err() if ctx is cancelled before
// completion.
func (h *RunHandle) Await(ctx context.Context) (RunResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

// Result returns the result and error. Only meaningful after Done()
// is closed. Before completion, returns a zero RunResult and nil
// error.
func (h *RunHandle) Result() (RunResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return RunResult{}, nil
	}
}

// Cancel requests cancellation. Non-blocking. The run receives a
// cancelled context; in-flight tool calls stop at their timeout.
// State transitions to RunCancelled once the loop returns.
func (h *RunHandle) Cancel() { h.cancel() }
