package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Release notes</title><style>body { color: red }</style></head>
<body>
<article>
<h1>Release notes</h1>
<p>The scheduler now drains in-flight jobs before exiting. Operators no
longer need to wait for the full poll interval when stopping a node.</p>
<p>Configuration reloads apply without a restart.</p>
</article>
<script>console.log("tracking")</script>
</body>
</html>`

func TestExecuteExtractsReadableText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "RelayBot") {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer ts.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": ts.URL})
	out, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "drains in-flight jobs") {
		t.Errorf("article text missing: %q", out)
	}
	if strings.Contains(out, "console.log") || strings.Contains(out, "color: red") {
		t.Errorf("script/style leaked: %q", out)
	}
}

func TestExecuteTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("word ", 5000)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><article><p>" + long + "</p></article></body></html>"))
	}))
	defer ts.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": ts.URL})
	out, err := tool.Execute(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasSuffix(out, "... (truncated)") {
		t.Error("long content not truncated")
	}
	body := strings.TrimSuffix(out, "\n... (truncated)")
	if n := len([]rune(body)); n > 8000 {
		t.Errorf("kept %d runes", n)
	}
}

func TestExecuteRejectsBadArgs(t *testing.T) {
	tool := New()
	if _, err := tool.Execute(context.Background(), json.RawMessage(`not json`), nil); err == nil {
		t.Error("malformed args accepted")
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`), nil); err == nil {
		t.Error("missing url accepted")
	}
}

func TestFetchHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	tool := New()
	_, err := tool.Fetch(context.Background(), ts.URL)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("err = %v", err)
	}
}

func TestFetchFallbackStripsTags(t *testing.T) {
	// Not enough content for readability; the fallback path strips
	// markup crudely.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<div><b>hello</b> world</div>"))
	}))
	defer ts.Close()

	tool := New()
	out, err := tool.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if strings.Contains(out, "<") {
		t.Errorf("markup leaked: %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("text lost: %q", out)
	}
}

func TestFetchRespectsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	tool := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := tool.Fetch(ctx, ts.URL); err == nil {
		t.Error("expected context error")
	}
}

func TestToolMetadata(t *testing.T) {
	tool := New()
	if tool.Name() != "fetch_page" {
		t.Errorf("name = %q", tool.Name())
	}
	var schema struct {
		Type     string         `json:"type"`
		Required []string       `json:"required"`
		Props    map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(tool.Parameters(), &schema); err != nil {
		t.Fatalf("parameters: %v", err)
	}
	if schema.Type != "object" || len(schema.Required) != 1 || schema.Required[0] != "url" {
		t.Errorf("schema = %+v", schema)
	}
	if _, ok := schema.Props["url"]; !ok {
		t.Error("url property missing")
	}
}
