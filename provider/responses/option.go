package responses

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Option configures a Client instance.
type Option func(*Client)

// WithBaseURL sets the API base (e.g. "https://api.openai.com/v1" or
// "http://localhost:8000/v1"). The /responses path is appended
// automatically.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client (e.g. for proxies or
// connection pooling).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithStreamTimeout bounds a single streaming call end-to-end
// (default 60s). Expiry surfaces as a network error.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.streamTimeout = d
		}
	}
}

// WithLogger sets the structured logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}
