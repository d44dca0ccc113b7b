package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	relay "github.com/relay-agents/relay"

	"github.com/relay-agents/relay/internal/config"
)

const defaultStreamTimeout = 60 * time.Second

// Client implements relay.Model against the OpenAI Responses API,
// or any server speaking the same protocol. The /responses path is
// appended to the base URL automatically.
type Client struct {
	apiKey        string
	model         string
	baseURL       string
	client        *http.Client
	streamTimeout time.Duration
	logger        *slog.Logger
}

// New creates a Responses API client for the given model.
//
// The default base URL is https://api.openai.com/v1; point it at a
// compatible server with WithBaseURL.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		model:         model,
		baseURL:       config.DefaultBaseURL,
		client:        &http.Client{},
		streamTimeout: defaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(discardHandler{})
	}
	return c
}

// FromEnv creates a client configured from OPENAI_API_KEY and
// OPENAI_BASE_URL. The key is required.
func FromEnv(model string, opts ...Option) (*Client, error) {
	key := config.APIKeyFromEnv()
	if key == "" {
		return nil, &relay.ErrInvalidConfig{Field: "api_key", Reason: "OPENAI_API_KEY not set"}
	}
	opts = append([]Option{WithBaseURL(config.BaseURLFromEnv())}, opts...)
	return New(key, model, opts...), nil
}

// Name returns the default model name requests are issued with.
func (c *Client) Name() string { return c.model }

// Complete implements relay.Model with a single blocking POST.
func (c *Client) Complete(ctx context.Context, req relay.ModelRequest) (relay.ModelResponse, error) {
	body := BuildBody(req)
	if body.Model == "" {
		body.Model = c.model
	}

	resp, err := c.send(ctx, body, false)
	if err != nil {
		return relay.ModelResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relay.ModelResponse{}, c.httpErr(resp)
	}

	var wire Response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return relay.ModelResponse{}, &relay.ErrDecode{Err: fmt.Errorf("response body: %w", err)}
	}
	return ParseResponse(wire)
}

// StreamComplete implements relay.Model. Normalised events are pushed
// into ch as wire frames arrive; suppressed frames are folded but not
// emitted. The channel is closed on every return path. The folded
// response is returned when the stream ends.
func (c *Client) StreamComplete(ctx context.Context, req relay.ModelRequest, ch chan<- relay.Event) (relay.ModelResponse, error) {
	defer close(ch)

	body := BuildBody(req)
	if body.Model == "" {
		body.Model = c.model
	}
	body.Stream = true

	sctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	defer cancel()

	resp, err := c.send(sctx, body, true)
	if err != nil {
		return relay.ModelResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relay.ModelResponse{}, c.httpErr(resp)
	}

	acc := newAccumulator()
	err = ReadSSE(sctx, resp.Body, func(ev StreamEvent) error {
		acc.ingest(ev)
		e := NormalizeEvent(ev)
		if e == nil {
			return nil
		}
		select {
		case ch <- e:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
	if err != nil {
		return relay.ModelResponse{}, c.streamErr(ctx, sctx, err)
	}
	return acc.fold(), nil
}

// streamErr classifies a streaming failure: consumer cancellation
// passes through, the per-stream deadline and transport failures
// surface as network errors.
func (c *Client) streamErr(ctx, sctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sctx.Err() != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("stream timed out", "timeout", c.streamTimeout)
		return &relay.ErrNetwork{Err: fmt.Errorf("stream timed out after %s", c.streamTimeout)}
	}
	var ne *relay.ErrNetwork
	if errors.As(err, &ne) {
		return err
	}
	return &relay.ErrNetwork{Err: err}
}

// send marshals the body and posts it to the responses endpoint.
func (c *Client) send(ctx context.Context, body Request, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &relay.ErrDecode{Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := c.baseURL + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &relay.ErrNetwork{Err: err}
	}
	c.logger.Debug("responses request", "model", body.Model, "stream", stream)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		c.logger.Warn("responses request failed", "error", err)
		return nil, &relay.ErrNetwork{Err: err}
	}
	return resp, nil
}

// httpErr reads the response body and returns an ErrAPI carrying the
// Retry-After hint for retry middleware.
func (c *Client) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	c.logger.Warn("responses api error", "status", resp.StatusCode)
	return &relay.ErrAPI{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: relay.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ relay.Model = (*Client)(nil)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
