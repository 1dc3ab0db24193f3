package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fwojciec/hangar"
)

// Interface compliance check.
var _ hangar.Provider = (*Client)(nil)

// Client implements [hangar.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends req to the Messages API and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	apiReq := buildRequest(req)
	apiReq.Model = req.Model
	if apiReq.Model == "" {
		apiReq.Model = defaultModel
	}
	injectCacheMarkers(&apiReq)
	body, err := json.Marshal(apiReq)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return hangar.AssistantMessage{}, parseHTTPError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	msg, err := DecodeResponse(data)
	if err != nil {
		return hangar.AssistantMessage{}, err
	}
	msg.Timestamp = c.now()
	return msg, nil
}

// EncodeBedrock encodes req as an InvokeModel body for an Anthropic model
// served by Bedrock.
func EncodeBedrock(req hangar.Request) ([]byte, error) {
	apiReq := buildRequest(req)
	apiReq.AnthropicVersion = BedrockVersion
	return json.Marshal(apiReq)
}

// DecodeResponse decodes a Messages API response body.
func DecodeResponse(data []byte) (hangar.AssistantMessage, error) {
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if resp.Type == "error" {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil {
			return hangar.AssistantMessage{}, fmt.Errorf("anthropic: %s: %s", apiErr.Error.Type, apiErr.Error.Message)
		}
		return hangar.AssistantMessage{}, errors.New("anthropic: error response")
	}
	msg := hangar.AssistantMessage{
		StopReason:    mapStopReason(resp.StopReason),
		RawStopReason: resp.StopReason,
		Usage: hangar.Usage{
			InputTokens:  max(resp.Usage.InputTokens, 0),
			OutputTokens: max(resp.Usage.OutputTokens, 0),
		},
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			msg.Content = append(msg.Content, hangar.TextBlock{Text: b.Text})
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			msg.Content = append(msg.Content, hangar.ToolCallBlock{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return msg, nil
}

func buildRequest(req hangar.Request) apiRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return apiRequest{
		MaxTokens:   maxTokens,
		System:      convertSystem(req.SystemPrompt),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
}

// convertSystem converts a system prompt string to an array of content blocks
// suitable for the Anthropic API. Returns nil when the prompt is empty.
func convertSystem(prompt string) []apiContentBlock {
	if prompt == "" {
		return nil
	}
	return []apiContentBlock{{Type: "text", Text: prompt}}
}

// injectCacheMarkers sets cache_control breakpoints on the last system block
// and the last tool, which are stable for the whole run.
func injectCacheMarkers(req *apiRequest) {
	cc := &apiCacheControl{Type: "ephemeral"}
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}
	if len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = cc
	}
}

func convertMessages(msgs []hangar.Message) []apiMessage {
	var result []apiMessage
	for _, msg := range msgs {
		switch m := msg.(type) {
		case hangar.UserMessage:
			result = append(result, apiMessage{
				Role:    "user",
				Content: convertContentBlocks(m.Content),
			})
		case hangar.AssistantMessage:
			result = append(result, apiMessage{
				Role:    "assistant",
				Content: convertContentBlocks(m.Content),
			})
		case hangar.ToolResultMessage:
			block := apiContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   convertContentBlocks(m.Content),
				IsError:   m.IsError,
			}
			// Merge consecutive tool results into the same user message.
			if n := len(result); n > 0 && result[n-1].Role == "user" && isToolResultMessage(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
			} else {
				result = append(result, apiMessage{
					Role:    "user",
					Content: []apiContentBlock{block},
				})
			}
		}
	}
	return result
}

func isToolResultMessage(msg apiMessage) bool {
	return len(msg.Content) > 0 && msg.Content[0].Type == "tool_result"
}

func convertContentBlocks(blocks []hangar.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case hangar.TextBlock:
			if bl.Text == "" {
				continue
			}
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case hangar.ToolCallBlock:
			input := bl.Arguments
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: input})
		}
	}
	return result
}

func convertTools(tools []hangar.ToolDescriptor) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return result
}

func mapStopReason(raw string) hangar.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return hangar.StopEndTurn
	case "max_tokens":
		return hangar.StopLength
	case "tool_use":
		return hangar.StopToolUse
	default:
		return hangar.StopUnknown
	}
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("anthropic: %s: %s", apiErr.Error.Type, apiErr.Error.Message)
}
