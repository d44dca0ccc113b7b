// Package fetch provides a tool that downloads a web page and hands
// the model its readable text content.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/go-shiori/go-readability"

	relay "github.com/relay-agents/relay"
)

const (
	maxBodyBytes   = 1 << 20 // 1MB download cap
	maxResultRunes = 8000
)

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

var _ relay.Tool = (*Tool)(nil)

// New creates a fetch tool with a 15-second HTTP timeout.
func New() *Tool {
	return &Tool{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithClient creates a fetch tool using the given HTTP client.
func NewWithClient(client *http.Client) *Tool {
	return &Tool{client: client}
}

func (t *Tool) Name() string { return "fetch_page" }

func (t *Tool) Description() string {
	return "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation."
}

func (t *Tool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`)
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage, _ relay.ToolContext) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid args: %w", err)
	}
	if params.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return "", err
	}

	if runes := []rune(content); len(runes) > maxResultRunes {
		content = string(runes[:maxResultRunes]) + "\n... (truncated)"
	}
	return content, nil
}

// Fetch downloads a URL and extracts readable text. Exported for use
// outside the tool interface.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; RelayBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	html := string(body)

	// Try readability extraction
	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	// Fallback: crude tag stripping
	return stripTags(html), nil
}

// stripTags removes markup, script, and style content, collapsing
// the remaining whitespace. A coarse fallback for pages readability
// cannot parse.
func stripTags(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	inTag := false
	skipUntil := "" // closing tag that ends a script/style block
	rest := content
	for len(rest) > 0 {
		if skipUntil != "" {
			idx := strings.Index(strings.ToLower(rest), skipUntil)
			if idx < 0 {
				break
			}
			rest = rest[idx+len(skipUntil):]
			skipUntil = ""
			continue
		}
		r := rest[0]
		switch {
		case r == '<':
			inTag = true
			lower := strings.ToLower(rest)
			if strings.HasPrefix(lower, "<script") {
				skipUntil = "</script>"
			} else if strings.HasPrefix(lower, "<style") {
				skipUntil = "</style>"
			}
			rest = rest[1:]
		case inTag:
			if r == '>' {
				inTag = false
				b.WriteByte(' ')
			}
			rest = rest[1:]
		default:
			b.WriteByte(r)
			rest = rest[1:]
		}
	}

	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
