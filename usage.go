package hangar

// Usage tracks token consumption.
//
// Providers normalize their API-specific counters to non-cached input tokens
// and output tokens. Values are clamped to zero.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}
