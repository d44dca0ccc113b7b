package relay

// Usage tracks token consumption reported by the model. Counters only
// grow within a run; merging is component-wise addition.
type Usage struct {
	// PromptTokens counts tokens in the input sent to the model.
	PromptTokens int64 `json:"prompt_tokens"`
	// CompletionTokens counts tokens the model generated.
	CompletionTokens int64 `json:"completion_tokens"`
	// TotalTokens is the sum reported by the server, or
	// PromptTokens+CompletionTokens when the server omits it.
	TotalTokens int64 `json:"total_tokens"`
}

// Add accumulates other into u. Zero-valued fields contribute nothing.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether no tokens have been recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}
