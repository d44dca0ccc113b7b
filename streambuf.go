package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// errConcurrentNext is returned when two readers block on the same
// stream buffer. At most one consumer may wait at a time.
var errConcurrentNext = errors.New("stream buffer: concurrent next")

const defaultStreamBufferSize = 256

// streamBuffer is the single-producer-ish, single-consumer queue
// between the runner and a streaming consumer. Events are delivered
// in emit order. After complete, queued events are still drained;
// then next reports io.EOF.
type streamBuffer struct {
	events  chan Event
	done    chan struct{}
	once    sync.Once
	reading atomic.Bool
}

func newStreamBuffer(size int) *streamBuffer {
	if size <= 0 {
		size = defaultStreamBufferSize
	}
	return &streamBuffer{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// emit queues e for the consumer. Events emitted after complete are
// dropped. Returns false when the event was not queued.
func (s *streamBuffer) emit(ctx context.Context, e Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// complete marks the stream finished. Idempotent.
func (s *streamBuffer) complete() {
	s.once.Do(func() { close(s.done) })
}

// completed reports whether complete has been called.
func (s *streamBuffer) completed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// next returns the next queued event. It blocks until an event
// arrives, the buffer completes (io.EOF after draining), or ctx is
// done. Only one goroutine may block in next at a time.
func (s *streamBuffer) next(ctx context.Context) (Event, error) {
	if !s.reading.CompareAndSwap(false, true) {
		return nil, errConcurrentNext
	}
	defer s.reading.Store(false)

	// Queued events win over completion so nothing is lost when
	// complete races the last emits.
	select {
	case e := <-s.events:
		return e, nil
	default:
	}

	select {
	case e := <-s.events:
		return e, nil
	case <-s.done:
		select {
		case e := <-s.events:
			return e, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
