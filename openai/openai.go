// Package openai implements [hangar.Provider] for OpenAI-compatible chat
// completion APIs using github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultModel     = "gpt-4.1"
	defaultMaxTokens = 4096
)

// Interface compliance check.
var _ hangar.Provider = (*Client)(nil)

// Client implements [hangar.Provider] over the chat completions endpoint.
type Client struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

type options struct {
	model   string
	baseURL string
}

// Option configures a [Client].
type Option func(*options)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// New creates a [Client] with the given API key.
func New(apiKey string, opts ...Option) *Client {
	o := options{model: defaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	return &Client{client: openai.NewClientWithConfig(cfg), model: o.model, now: time.Now}
}

// Complete implements [hangar.Provider].
func (c *Client) Complete(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("openai: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	creq := openai.ChatCompletionRequest{
		Model:               model,
		Messages:            ConvertMessages(req.SystemPrompt, req.Messages),
		Tools:               ConvertTools(req.Tools),
		MaxCompletionTokens: maxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("openai: %w", err)
	}
	msg, err := ConvertResponse(resp)
	if err != nil {
		return hangar.AssistantMessage{}, err
	}
	msg.Timestamp = c.now()
	return msg, nil
}

// ConvertMessages converts the system prompt and transcript into chat
// messages. Exported for testing.
func ConvertMessages(system string, msgs []hangar.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case hangar.UserMessage:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: hangar.JoinText(m.Content),
			})
		case hangar.AssistantMessage:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Text(),
			}
			for _, tc := range m.ToolCalls() {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			result = append(result, out)
		case hangar.ToolResultMessage:
			content := hangar.JoinText(m.Content)
			if m.IsError {
				content = "error: " + content
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				Name:       m.ToolName,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return result
}

// ConvertTools converts tool descriptors to function tools.
// Exported for testing.
func ConvertTools(tools []hangar.ToolDescriptor) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

// ConvertResponse converts the first choice of resp into an assistant
// message. Exported for testing.
func ConvertResponse(resp openai.ChatCompletionResponse) (hangar.AssistantMessage, error) {
	if len(resp.Choices) == 0 {
		return hangar.AssistantMessage{}, errors.New("openai: no choices in response")
	}
	choice := resp.Choices[0]
	var msg hangar.AssistantMessage
	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, hangar.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.Content = append(msg.Content, hangar.ToolCallBlock{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	msg.RawStopReason = string(choice.FinishReason)
	switch choice.FinishReason {
	case openai.FinishReasonStop:
		msg.StopReason = hangar.StopEndTurn
	case openai.FinishReasonLength:
		msg.StopReason = hangar.StopLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		msg.StopReason = hangar.StopToolUse
	case openai.FinishReasonContentFilter:
		msg.StopReason = hangar.StopError
	default:
		msg.StopReason = hangar.StopUnknown
	}
	cached := 0
	if d := resp.Usage.PromptTokensDetails; d != nil {
		cached = d.CachedTokens
	}
	msg.Usage = hangar.Usage{
		InputTokens:  max(resp.Usage.PromptTokens-cached, 0),
		OutputTokens: max(resp.Usage.CompletionTokens, 0),
	}
	return msg, nil
}
