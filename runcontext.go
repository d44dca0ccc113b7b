package relay

import "sync"

// ToolContext is the read-only view of the run state handed to tools.
// Mutation (AddUsage, SetMetadata) stays with the engine, guardrails,
// and hooks, which receive the full *RunContext.
type ToolContext interface {
	// Value returns the opaque payload supplied at run start.
	Value() any
	// Usage returns a snapshot of the aggregate usage so far.
	Usage() Usage
	// Metadata returns the value stored under key and whether it
	// exists.
	Metadata(key string) (any, bool)
}

// RunContext carries the caller-supplied value plus engine-maintained
// usage and metadata through every tool, guardrail, and hook of one
// run. The engine never writes the user value; mutations of usage and
// metadata are serialised by an internal mutex.
type RunContext struct {
	value any

	mu       sync.Mutex
	usage    Usage
	metadata map[string]any
}

var _ ToolContext = (*RunContext)(nil)

// NewRunContext wraps value as the opaque payload for a run. The
// façade calls this; construct one directly only in tests.
func NewRunContext(value any) *RunContext {
	return &RunContext{value: value, metadata: make(map[string]any)}
}

// Value returns the opaque payload supplied at run start.
func (rc *RunContext) Value() any { return rc.value }

// AddUsage merges u into the run's aggregate usage.
func (rc *RunContext) AddUsage(u Usage) {
	rc.mu.Lock()
	rc.usage.Add(u)
	rc.mu.Unlock()
}

// Usage returns a snapshot of the aggregate usage so far.
func (rc *RunContext) Usage() Usage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.usage
}

// SetMetadata stores v under key, visible to later callbacks in the
// same run.
func (rc *RunContext) SetMetadata(key string, v any) {
	rc.mu.Lock()
	rc.metadata[key] = v
	rc.mu.Unlock()
}

// Metadata returns the value stored under key and whether it exists.
func (rc *RunContext) Metadata(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.metadata[key]
	return v, ok
}
