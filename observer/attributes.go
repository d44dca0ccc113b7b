package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for relay observability spans and metrics.
var (
	AttrLLMModel  = attribute.Key("llm.model")
	AttrLLMMethod = attribute.Key("llm.method")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrStreamEvents = attribute.Key("llm.stream_events")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolCallID       = attribute.Key("tool.call_id")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")

	AttrAgentName = attribute.Key("agent.name")
	AttrRunResult = attribute.Key("run.result")
	AttrTraceID   = attribute.Key("relay.trace_id")
	AttrSpanType  = attribute.Key("relay.span_type")
	AttrGroupID   = attribute.Key("relay.group_id")
)
