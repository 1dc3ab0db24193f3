package hangar

import "context"

// Provider is a strategy pattern interface for reasoning engines. Complete
// sends the transcript and the available tools and returns one assistant
// reply, which either requests tool calls or carries a final answer.
type Provider interface {
	Complete(ctx context.Context, req Request) (AssistantMessage, error)
}

// Request carries model selection and generation parameters.
// The provider uses its own defaults when fields are zero/nil.
type Request struct {
	Model        string // model ID, provider-specific; empty = provider default
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDescriptor
	MaxTokens    int      // 0 = provider default
	Temperature  *float64 // nil = provider default
}
