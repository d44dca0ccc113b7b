package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 5 * time.Second
	defaultQueueSize    = 2048

	// maxExportAttempts bounds retries per batch; backoff doubles
	// from retryBaseDelay between attempts.
	maxExportAttempts = 3
	retryBaseDelay    = time.Second

	ingestPath = "/traces/ingest"
)

// BatchExporter ships ended traces to the ingest endpoint. A single
// background task owns the pending queue; Enqueue never blocks.
type BatchExporter struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	batchSize int
	timeout   time.Duration
	logger    *slog.Logger

	queue    chan Trace
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ExporterOption configures a BatchExporter.
type ExporterOption func(*BatchExporter)

// WithBatchSize sets the trace count that forces a flush.
func WithBatchSize(n int) ExporterOption {
	return func(e *BatchExporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBatchTimeout sets the maximum time a trace waits before its
// batch is flushed.
func WithBatchTimeout(d time.Duration) ExporterOption {
	return func(e *BatchExporter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithQueueSize sets the pending queue capacity. Traces enqueued
// beyond it are dropped.
func WithQueueSize(n int) ExporterOption {
	return func(e *BatchExporter) {
		if n > 0 {
			e.queue = make(chan Trace, n)
		}
	}
}

// WithHTTPClient sets the HTTP client used for ingest requests.
func WithHTTPClient(c *http.Client) ExporterOption {
	return func(e *BatchExporter) { e.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExporterOption {
	return func(e *BatchExporter) { e.logger = l }
}

// NewBatchExporter creates an exporter posting to
// baseURL+"/traces/ingest" and starts its background task. Call
// Shutdown to flush and stop it.
func NewBatchExporter(baseURL, apiKey string, opts ...ExporterOption) *BatchExporter {
	e := &BatchExporter{
		endpoint:  strings.TrimRight(baseURL, "/") + ingestPath,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		batchSize: defaultBatchSize,
		timeout:   defaultBatchTimeout,
		logger:    slog.New(discardHandler{}),
		queue:     make(chan Trace, defaultQueueSize),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Enqueue adds a trace to the pending queue. Returns false when the
// queue is full; the trace is dropped rather than blocking the
// caller.
func (e *BatchExporter) Enqueue(t Trace) bool {
	select {
	case <-e.stop:
		return false
	default:
	}
	select {
	case e.queue <- t:
		return true
	default:
		return false
	}
}

// Shutdown flushes pending traces and stops the background task. It
// returns early with ctx's error if the flush outlives ctx.
func (e *BatchExporter) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stop) })
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *BatchExporter) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.timeout)
	defer ticker.Stop()

	batch := make([]Trace, 0, e.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.export(batch)
		batch = batch[:0]
	}

	for {
		select {
		case t := <-e.queue:
			batch = append(batch, t)
			if len(batch) >= e.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.stop:
			for {
				select {
				case t := <-e.queue:
					batch = append(batch, t)
					if len(batch) >= e.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

type ingestPayload struct {
	Traces     []Trace `json:"traces"`
	ExportedAt string  `json:"exported_at"`
}

// export posts one batch, retrying on 5xx and network errors with
// exponential backoff. Client errors (4xx) drop the batch.
func (e *BatchExporter) export(batch []Trace) {
	body, err := json.Marshal(ingestPayload{
		Traces:     batch,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		e.logger.Error("trace batch marshal failed", "error", err)
		return
	}

	for attempt := 0; attempt < maxExportAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-e.stop:
				// Last chance during shutdown, no more waiting after
				// this attempt.
			}
		}
		retryable, err := e.post(body)
		if err == nil {
			return
		}
		if !retryable {
			e.logger.Warn("trace batch rejected", "traces", len(batch), "error", err)
			return
		}
		e.logger.Warn("trace export failed", "attempt", attempt+1, "error", err)
	}
	e.logger.Warn("trace batch dropped after retries", "traces", len(batch))
}

func (e *BatchExporter) post(body []byte) (retryable bool, err error) {
	req, err := http.NewRequest(http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "traces=v1")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("ingest returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("ingest returned %d", resp.StatusCode)
	}
}
