package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunStateString(t *testing.T) {
	cases := map[RunState]string{
		RunPending:   "pending",
		RunRunning:   "running",
		RunCompleted: "completed",
		RunFailed:    "failed",
		RunCancelled: "cancelled",
		RunState(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

func TestRunStateIsTerminal(t *testing.T) {
	for _, s := range []RunState{RunCompleted, RunFailed, RunCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%v not terminal", s)
		}
	}
	for _, s := range []RunState{RunPending, RunRunning} {
		if s.IsTerminal() {
			t.Errorf("%v terminal", s)
		}
	}
}

func TestRunAsyncCompletes(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{resp: textResponse("done", Usage{TotalTokens: 2})}}}
	agent := MustNew("bg")

	h, err := RunAsync(context.Background(), agent, Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	if h.ID() == "" || h.Agent() != agent {
		t.Errorf("handle identity = %q / %v", h.ID(), h.Agent())
	}

	result, err := h.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.Output != "done" {
		t.Errorf("output = %q", result.Output)
	}
	if h.State() != RunCompleted {
		t.Errorf("state = %v", h.State())
	}
	if r, err := h.Result(); err != nil || r.Output != "done" {
		t.Errorf("Result = %+v, %v", r, err)
	}
}

func TestRunAsyncFailure(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{err: &ErrAPI{Status: 500, Body: "boom"}}}}
	agent := MustNew("bg-fail")

	h, err := RunAsync(context.Background(), agent, Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	_, err = h.Await(context.Background())
	var ae *ErrAPI
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v", err)
	}
	if h.State() != RunFailed {
		t.Errorf("state = %v", h.State())
	}
}

func TestRunAsyncCancel(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{
		resp:  textResponse("never", Usage{}),
		delay: 5 * time.Second,
	}}}
	agent := MustNew("bg-cancel")

	h, err := RunAsync(context.Background(), agent, Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	h.Cancel()

	_, err = h.Await(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if h.State() != RunCancelled {
		t.Errorf("state = %v", h.State())
	}
}

func TestRunAsyncAwaitRespectsCallerContext(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{
		resp:  textResponse("slow", Usage{}),
		delay: 2 * time.Second,
	}}}
	agent := MustNew("bg-slow")

	h, err := RunAsync(context.Background(), agent, Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	defer h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = h.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestRunAsyncResultBeforeCompletion(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{
		resp:  textResponse("pending", Usage{}),
		delay: time.Second,
	}}}
	agent := MustNew("bg-pending")

	h, err := RunAsync(context.Background(), agent, Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	defer h.Cancel()

	if r, err := h.Result(); err != nil || r.Output != "" {
		t.Errorf("early Result = %+v, %v, want zero value", r, err)
	}
}

func TestRunAsyncDoneMultiplexes(t *testing.T) {
	model := &stubModel{turns: []stubTurn{{resp: textResponse("a", Usage{})}}}
	h, err := RunAsync(context.Background(), MustNew("bg-done"), Text("x"), runOpts(model)...)
	if err != nil {
		t.Fatalf("RunAsync: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
}
