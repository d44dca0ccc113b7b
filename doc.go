// Package relay is an agent runtime for LLM Responses APIs in Go.
//
// It drives multi-turn conversations against a Responses HTTP
// endpoint: the model may call local tools, hand the conversation off
// to other agents, be gated by input/output guardrails, and deliver
// either a final value or a live event stream.
//
// # Quick Start
//
// Build an agent and run it:
//
//	model, _ := responses.FromEnv("gpt-4.1")
//
//	agent := relay.MustNew("assistant",
//		relay.WithInstructions("You are a helpful assistant."),
//		relay.WithTools(
//			relay.NewFunctionTool("add", "Add two integers.", addHandler,
//				relay.WithParametersFrom(addArgs{})),
//		),
//	)
//
//	result, err := relay.Run(ctx, agent, relay.Text("What is 2+3?"),
//		relay.WithDefaultModel(model))
//
// Stream the same run instead of blocking on the final value:
//
//	stream, _ := relay.Stream(ctx, agent, relay.Text("What is 2+3?"),
//		relay.WithDefaultModel(model))
//	for ev := range stream.Events() {
//		// switch on the concrete event type
//	}
//	result, err := stream.Result(ctx)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Agent] — a named bundle of instructions, tools, handoffs, and guardrails
//   - [Model] — the completion backend (blocking and streaming)
//   - [Tool] — pluggable capability the model calls by name with JSON arguments
//   - [Handoff] — structured transfer of the turn loop to another agent
//   - [InputGuardrail], [OutputGuardrail] — validators that may refuse a run
//   - [Event] — sealed set of streaming event variants
//
// # Included Implementations
//
// Models: provider/responses (OpenAI Responses API and compatible
// servers), composable with [WithRetry] and [WithRateLimit].
// Tools: tools/fetch (readable web page fetch).
// Tracing: tracing (run traces with a batching exporter), observer
// (OpenTelemetry bridge).
//
// See the cmd/relay directory for a complete reference application.
package relay
