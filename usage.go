package letsim

// Usage tracks token consumption as reported by the provider. Providers that
// stream without a usage object leave it zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns the sum of prompt and completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}
