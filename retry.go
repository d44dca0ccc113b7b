package relay

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryModel wraps a Model and automatically retries transient HTTP
// errors (status 429 Too Many Requests and 503 Service Unavailable)
// with exponential backoff.
type retryModel struct {
	inner       Model
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// RetryOption configures a retryModel.
type RetryOption func(*retryModel)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryModel) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second
// attempt (default: 1s). Each subsequent delay doubles: baseDelay,
// 2×baseDelay, 4×baseDelay, …
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryModel) { r.baseDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry
// sequence. If the total time across all attempts exceeds this
// duration, the retry loop gives up and returns the last error. The
// zero value (default) disables the timeout.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryModel) { r.timeout = d }
}

// RetryLogger sets the structured logger for retry events. When set,
// retries log at WARN level and final failures after exhausting
// attempts log at ERROR. If not set, a no-op logger is used.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryModel) { r.logger = l }
}

// WithRetry wraps m with automatic retry on transient HTTP errors
// (429, 503). Retries use exponential backoff with jitter. When the
// error includes a Retry-After duration (parsed from the HTTP
// header), the retry delay is at least that long. Compose with any
// Model:
//
//	model = relay.WithRetry(responses.New(apiKey, "gpt-4.1"))
//	model = relay.WithRetry(client, relay.RetryMaxAttempts(5))
//	model = relay.WithRetry(client, relay.RetryTimeout(30*time.Second))
func WithRetry(m Model, opts ...RetryOption) Model {
	r := &retryModel{
		inner:       m,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Name delegates to the inner model.
func (r *retryModel) Name() string { return r.inner.Name() }

// Complete implements Model with retry.
func (r *retryModel) Complete(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil || !isTransient(err) {
			return resp, err
		}
		last = err
		r.logger.Warn("retrying transient error",
			"model", r.inner.Name(),
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepFor(ctx, retryDelay(r.baseDelay, i, err)); err != nil {
				return ModelResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted",
		"model", r.inner.Name(),
		"attempts", r.maxAttempts,
		"error", last)
	return ModelResponse{}, last
}

// StreamComplete implements Model with retry. Retries are only
// performed if no events have been written to ch yet — once streaming
// has started, errors pass through immediately to avoid sending
// duplicate content. ch is always closed before returning.
func (r *retryModel) StreamComplete(ctx context.Context, req ModelRequest, ch chan<- Event) (ModelResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var lastErr error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan Event, 64)
		var (
			resp      ModelResponse
			streamErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			resp, streamErr = r.inner.StreamComplete(ctx, req, mid)
		}()

		var eventsSent bool
		for ev := range mid {
			eventsSent = true
			ch <- ev
		}
		<-done

		if streamErr == nil || !isTransient(streamErr) || eventsSent {
			close(ch)
			return resp, streamErr
		}

		lastErr = streamErr
		r.logger.Warn("retrying transient error",
			"model", r.inner.Name(),
			"status", statusOf(streamErr),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepFor(ctx, retryDelay(r.baseDelay, i, streamErr)); err != nil {
				close(ch)
				return ModelResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted (stream)",
		"model", r.inner.Name(),
		"attempts", r.maxAttempts,
		"error", lastErr)
	close(ch)
	return ModelResponse{}, lastErr
}

// withTimeout returns a child context with a deadline if r.timeout is
// set. If timeout is zero or ctx already has an earlier deadline,
// returns ctx unchanged. The caller must call the returned CancelFunc
// when done.
func (r *retryModel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrAPI
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status code from an ErrAPI, or 0.
func statusOf(err error) int {
	var e *ErrAPI
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an ErrAPI, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrAPI
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryDelay computes the delay before retry attempt i, using
// exponential backoff as a floor and the server's Retry-After value
// (if present) as a minimum. The effective delay is
// max(backoff, retryAfter).
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// sleepFor blocks for d, unblocking early with ctx.Err() on
// cancellation.
func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// compile-time check
var _ Model = (*retryModel)(nil)
