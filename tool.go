package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	jsvalidator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is a capability the model may invoke by name with JSON
// arguments. Execute returns the raw output string fed back to the
// model as the call's function_call_output. Tools see the run state
// through the read-only ToolContext.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-Schema document describing the
	// tool's arguments. It is forwarded to the model verbatim.
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, tc ToolContext) (string, error)
}

// ErrorTransformer is an optional Tool capability. When a tool fails,
// the dispatcher feeds TransformError's return value to the model
// instead of the raw error message.
// Check via type assertion: if et, ok := tool.(ErrorTransformer); ok { ... }
type ErrorTransformer interface {
	TransformError(err error) string
}

// HandlerFunc is the callable behind a FunctionTool.
type HandlerFunc func(ctx context.Context, args json.RawMessage, tc ToolContext) (string, error)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// FunctionTool adapts a plain Go function into a Tool. Parameters
// default to an empty object schema; derive one from a struct with
// WithParametersFrom or supply a document with WithParameters.
type FunctionTool struct {
	name        string
	description string
	parameters  json.RawMessage
	handler     HandlerFunc
	onError     func(error) string
	validate    bool
	validator   *jsvalidator.Schema
	compileErr  error
}

var _ Tool = (*FunctionTool)(nil)
var _ ErrorTransformer = (*FunctionTool)(nil)

// FunctionToolOption configures a FunctionTool.
type FunctionToolOption func(*FunctionTool)

// WithParameters sets the arguments schema verbatim.
func WithParameters(schema json.RawMessage) FunctionToolOption {
	return func(t *FunctionTool) { t.parameters = schema }
}

// WithParametersFrom derives the arguments schema from the fields of
// v via reflection.
func WithParametersFrom(v any) FunctionToolOption {
	return func(t *FunctionTool) { t.parameters = ReflectSchema(v) }
}

// WithErrorTransform sets the message returned to the model when the
// handler fails.
func WithErrorTransform(fn func(error) string) FunctionToolOption {
	return func(t *FunctionTool) { t.onError = fn }
}

// WithArgumentValidation checks incoming arguments against the
// parameters schema before invoking the handler. Invalid arguments
// fail the call without running it.
func WithArgumentValidation() FunctionToolOption {
	return func(t *FunctionTool) { t.validate = true }
}

// NewFunctionTool builds a Tool around handler.
func NewFunctionTool(name, description string, handler HandlerFunc, opts ...FunctionToolOption) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  emptyObjectSchema,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.validate {
		t.validator, t.compileErr = compileSchema(t.parameters)
	}
	return t
}

// Name returns the function name presented to the model.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description presented to the model.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the arguments schema.
func (t *FunctionTool) Parameters() json.RawMessage { return t.parameters }

// Execute validates args when configured, then invokes the handler.
func (t *FunctionTool) Execute(ctx context.Context, args json.RawMessage, tc ToolContext) (string, error) {
	if t.compileErr != nil {
		return "", fmt.Errorf("parameters schema: %w", t.compileErr)
	}
	if t.validator != nil {
		var doc any
		if err := json.Unmarshal(args, &doc); err != nil {
			return "", fmt.Errorf("arguments: %w", err)
		}
		if err := t.validator.Validate(doc); err != nil {
			return "", fmt.Errorf("arguments: %w", err)
		}
	}
	return t.handler(ctx, args, tc)
}

// TransformError applies the configured error transform, defaulting
// to the error's message.
func (t *FunctionTool) TransformError(err error) string {
	if t.onError != nil {
		return t.onError(err)
	}
	return err.Error()
}

// ReflectSchema derives a JSON-Schema document from the fields of v.
// Definitions are inlined and additional properties disallowed, so
// the result can be forwarded directly as a tool's parameters.
func ReflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return emptyObjectSchema
	}
	return b
}

// OutputSchemaFor declares the final-answer shape from a Go type.
// The schema name is the type's dotted path; the adapter keeps only
// the last component on the wire.
func OutputSchemaFor(v any) *OutputSchema {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return &OutputSchema{Name: t.String(), Schema: ReflectSchema(v)}
}

// compileSchema prepares a draft-2020 validator for raw.
func compileSchema(raw json.RawMessage) (*jsvalidator.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsvalidator.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("tool.json")
}
