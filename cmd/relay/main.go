// Command relay runs a single agent turn loop from the terminal: a
// one-shot prompt against the Responses API, with a web fetch tool,
// an injection guardrail, and optional streaming output.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	relay "github.com/relay-agents/relay"
	"github.com/relay-agents/relay/internal/config"
	"github.com/relay-agents/relay/observer"
	"github.com/relay-agents/relay/provider/responses"
	"github.com/relay-agents/relay/tools/fetch"
	"github.com/relay-agents/relay/tracing"
)

func main() {
	var (
		modelName    = flag.String("model", "gpt-4.1-mini", "model to run against")
		instructions = flag.String("instructions", "You are a helpful assistant.", "system instructions")
		stream       = flag.Bool("stream", false, "stream output as it is generated")
		maxTurns     = flag.Int("max-turns", 0, "tool-continuation turn limit (0 = config default)")
		verbose      = flag.Bool("v", false, "log run lifecycle to stderr")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: relay [flags] <prompt>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	prompt := flag.Arg(0)

	cfg := config.Load(os.Getenv("RELAY_CONFIG"))
	if cfg.API.Key == "" {
		fmt.Fprintln(os.Stderr, "relay: OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model: Responses API client behind retry middleware.
	client := responses.New(cfg.API.Key, *modelName,
		responses.WithBaseURL(cfg.API.BaseURL),
		responses.WithLogger(logger),
	)
	model := relay.WithRetry(client, relay.RetryLogger(logger))

	// Tracing: batch exporter to the ingest endpoint, plus the OTEL
	// bridge when the observer is enabled.
	var registry *tracing.Registry
	if !cfg.Tracing.Disabled {
		exporter := tracing.NewBatchExporter(cfg.Tracing.Endpoint, cfg.API.Key,
			tracing.WithBatchSize(cfg.Tracing.BatchSize),
			tracing.WithBatchTimeout(time.Duration(cfg.Tracing.BatchTimeoutSeconds)*time.Second),
			tracing.WithLogger(logger),
		)
		defer exporter.Shutdown(context.Background())

		opts := []tracing.RegistryOption{tracing.WithExporter(exporter)}
		if cfg.Observer.Enabled {
			inst, shutdown, err := observer.Init(ctx, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "relay: observer init: %v\n", err)
				os.Exit(1)
			}
			defer shutdown(context.Background())
			opts = append(opts, tracing.WithProcessors(observer.NewBridge(inst)))
		}
		registry = tracing.NewRegistry(opts...)
	} else {
		registry = tracing.NewRegistry(tracing.WithDisabled(true))
	}

	agent, err := relay.New("relay",
		relay.WithInstructions(*instructions),
		relay.WithTools(fetch.New()),
		relay.WithInputGuardrails(relay.NewInjectionGuardrail()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}

	turns := cfg.Run.MaxTurns
	if *maxTurns > 0 {
		turns = *maxTurns
	}
	opts := []relay.RunOption{
		relay.WithDefaultModel(model),
		relay.WithMaxTurns(turns),
		relay.WithTimeout(time.Duration(cfg.Run.TimeoutSeconds) * time.Second),
		relay.WithToolTimeout(time.Duration(cfg.Run.ToolTimeoutSeconds) * time.Second),
		relay.WithLogger(logger),
		relay.WithTracing(registry),
	}

	if *stream {
		if err := streamRun(ctx, agent, prompt, opts); err != nil {
			fmt.Fprintf(os.Stderr, "relay: %v\n", err)
			os.Exit(1)
		}
		return
	}

	result, err := relay.Run(ctx, agent, relay.Text(prompt), opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Output)
	if *verbose {
		fmt.Fprintf(os.Stderr, "tokens: %d prompt, %d completion; turns: %d; trace: %s\n",
			result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Turns, result.TraceID)
	}
}

func streamRun(ctx context.Context, agent *relay.Agent, prompt string, opts []relay.RunOption) error {
	s, err := relay.Stream(ctx, agent, relay.Text(prompt), opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	for ev := range s.Events() {
		switch e := ev.(type) {
		case relay.TextDelta:
			fmt.Print(e.Text)
		case relay.ToolCall:
			fmt.Fprintf(os.Stderr, "\n[tool call: %s]\n", e.Name)
		case relay.StreamComplete:
			fmt.Println()
		}
	}
	_, err = s.Result(ctx)
	return err
}
