package responses

import (
	"encoding/json"
	"strings"

	relay "github.com/relay-agents/relay"
)

// BuildBody converts a normalised model request into the Responses
// API body. Conversation items serialise directly; tools take the
// hybrid wire shape; nil settings are omitted.
func BuildBody(req relay.ModelRequest) Request {
	body := Request{
		Model:              req.Model,
		Instructions:       req.Instructions,
		Input:              req.Input,
		Temperature:        req.Settings.Temperature,
		TopP:               req.Settings.TopP,
		ParallelToolCalls:  req.Settings.ParallelToolCalls,
		MaxOutputTokens:    req.Settings.MaxTokens,
		PreviousResponseID: req.PreviousResponseID,
	}
	if body.Input == nil {
		body.Input = []relay.Item{}
	}

	if len(req.Tools) > 0 {
		body.Tools = BuildToolDefs(req.Tools)
	}
	body.ToolChoice = toolChoiceValue(req.Settings.ToolChoice)

	if req.OutputSchema != nil && len(req.OutputSchema.Schema) > 0 {
		body.Text = &TextConfig{Format: &TextFormat{
			Type:   "json_schema",
			Name:   formatName(req.OutputSchema.Name),
			Schema: req.OutputSchema.Schema,
		}}
	}

	return body
}

// BuildToolDefs converts tool definitions to the hybrid wire shape.
func BuildToolDefs(tools []relay.ToolDefinition) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Function:    Function{Parameters: params},
		})
	}
	return out
}

// toolChoiceValue renders a ToolChoice as its wire value: the strings
// "auto" and "none", or the function-selection object. The zero value
// yields nil and is omitted.
func toolChoiceValue(tc relay.ToolChoice) any {
	switch tc.Mode {
	case "auto", "none":
		return tc.Mode
	case "function":
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.FunctionName},
		}
	default:
		return nil
	}
}

// formatName reduces a dotted schema identifier to its last
// component, e.g. "weather.Report" becomes "Report".
func formatName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
