package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestStreamBufferOrder(t *testing.T) {
	buf := newStreamBuffer(8)
	ctx := context.Background()

	buf.emit(ctx, TextDelta{Text: "a"})
	buf.emit(ctx, TextDelta{Text: "b"})
	buf.emit(ctx, TextDelta{Text: "c"})

	for _, want := range []string{"a", "b", "c"} {
		e, err := buf.next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if d := e.(TextDelta); d.Text != want {
			t.Errorf("got %q, want %q", d.Text, want)
		}
	}
}

func TestStreamBufferNextBlocksUntilEmit(t *testing.T) {
	buf := newStreamBuffer(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		buf.emit(context.Background(), TextDelta{Text: "late"})
	}()

	e, err := buf.next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if e.(TextDelta).Text != "late" {
		t.Errorf("got %#v", e)
	}
}

func TestStreamBufferDrainsAfterComplete(t *testing.T) {
	buf := newStreamBuffer(8)
	ctx := context.Background()

	buf.emit(ctx, TextDelta{Text: "queued"})
	buf.complete()
	buf.complete() // idempotent

	e, err := buf.next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if e.(TextDelta).Text != "queued" {
		t.Errorf("got %#v", e)
	}

	if _, err := buf.next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
	// EOF is sticky.
	if _, err := buf.next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("second err = %v, want io.EOF", err)
	}
}

func TestStreamBufferEmitAfterCompleteDropped(t *testing.T) {
	buf := newStreamBuffer(8)
	buf.complete()
	if buf.emit(context.Background(), TextDelta{Text: "x"}) {
		t.Error("emit after complete reported success")
	}
	if !buf.completed() {
		t.Error("completed() = false")
	}
}

func TestStreamBufferNextContextCancelled(t *testing.T) {
	buf := newStreamBuffer(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := buf.next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestStreamBufferRejectsConcurrentNext(t *testing.T) {
	buf := newStreamBuffer(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		buf.next(ctx) // parks until cancel
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	_, err := buf.next(context.Background())
	if !errors.Is(err, errConcurrentNext) {
		t.Errorf("err = %v, want errConcurrentNext", err)
	}
}

func TestStreamBufferEmitBlocksWhenFull(t *testing.T) {
	buf := newStreamBuffer(1)
	ctx := context.Background()
	buf.emit(ctx, TextDelta{Text: "first"})

	emitted := make(chan bool, 1)
	go func() {
		emitted <- buf.emit(ctx, TextDelta{Text: "second"})
	}()

	select {
	case <-emitted:
		t.Fatal("emit returned before consumer drained")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := buf.next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if ok := <-emitted; !ok {
		t.Error("blocked emit reported failure")
	}
}
