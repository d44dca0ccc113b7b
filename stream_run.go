package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNextTimeout reports that RunStream.Next waited out its timeout
// with no event arriving. The stream is still live; calling Next
// again keeps waiting.
type ErrNextTimeout struct {
	Timeout time.Duration
}

func (e *ErrNextTimeout) Error() string {
	return fmt.Sprintf("no stream event within %s", e.Timeout)
}

// RunStream is the consumer side of a streaming run. Exactly one
// goroutine may read it. Closing it cancels the run.
type RunStream struct {
	handle *RunHandle
	buf    *streamBuffer
}

// Stream starts agent against input on a background goroutine and
// returns a stream of normalised events. Events arrive in the order
// the wire delivered them; the final event of a successful run is
// StreamComplete, after which Next reports io.EOF.
//
// Streaming runs have no aggregate timeout; per-request timeouts and
// ctx still apply. The caller must drain or Close the stream, or the
// runner blocks once the buffer fills.
func Stream(ctx context.Context, agent *Agent, input Input, opts ...RunOption) (*RunStream, error) {
	cfg := buildRunConfig(opts)
	buf := newStreamBuffer(cfg.bufferSize)
	r, err := newRunner(agent, input, cfg, buf)
	if err != nil {
		return nil, err
	}
	h := spawnRun(ctx, r, cfg.timeout)
	return &RunStream{handle: h, buf: buf}, nil
}

// Next returns the next event. It blocks until an event arrives, the
// stream ends (io.EOF), or timeout elapses (*ErrNextTimeout). A
// non-positive timeout waits indefinitely.
//
// io.EOF means the run terminated; check Result for the outcome. A
// failed run also ends with io.EOF, carrying the error in Result.
func (s *RunStream) Next(timeout time.Duration) (Event, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	e, err := s.buf.next(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, &ErrNextTimeout{Timeout: timeout}
	}
	return e, err
}

// Events drains the stream into a channel, closed when the stream
// ends. Convenience for range loops; equivalent to calling Next with
// no timeout until io.EOF.
func (s *RunStream) Events() <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for {
			e, err := s.buf.next(context.Background())
			if err != nil {
				return
			}
			ch <- e
		}
	}()
	return ch
}

// Result blocks until the run terminates and returns its outcome.
// Usually called after Next reported io.EOF, where it returns
// immediately.
func (s *RunStream) Result(ctx context.Context) (RunResult, error) {
	return s.handle.Await(ctx)
}

// Done returns a channel closed when the background run finishes.
func (s *RunStream) Done() <-chan struct{} { return s.handle.Done() }

// Close cancels the run and releases the buffer. Events still queued
// are dropped. Safe to call more than once; always returns nil.
func (s *RunStream) Close() error {
	s.handle.Cancel()
	s.buf.complete()
	return nil
}
