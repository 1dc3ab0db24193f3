package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ hangar.Provider = (*Client)(nil)

// Client implements [hangar.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
	now    func() time.Time
}

type options struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*options)

// WithModel sets the model ID. Default is gemini-2.5-pro.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL overrides the API endpoint. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the logger. Request conversion problems are logged at debug.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	o := options{model: defaultModel, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions.BaseURL = o.baseURL
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Client{client: gc, model: o.model, logger: o.logger, now: time.Now}, nil
}

// Complete sends req to the Gemini API and returns the model's reply.
func (c *Client) Complete(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, ConvertMessages(req.Messages), buildConfig(req, c.logger))
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("gemini: %w", err)
	}
	msg, err := ConvertResponse(resp)
	if err != nil {
		return hangar.AssistantMessage{}, err
	}
	msg.Timestamp = c.now()
	return msg, nil
}

func buildConfig(req hangar.Request, logger *slog.Logger) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools, logger),
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertMessages converts hangar Messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []hangar.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case hangar.UserMessage:
			result = append(result, &genai.Content{
				Role:  genai.RoleUser,
				Parts: convertParts(m.Content),
			})
		case hangar.AssistantMessage:
			result = append(result, &genai.Content{
				Role:  genai.RoleModel,
				Parts: convertParts(m.Content),
			})
		case hangar.ToolResultMessage:
			text := hangar.JoinText(m.Content)
			var responseMap map[string]any
			if m.IsError {
				responseMap = map[string]any{"error": text}
			} else {
				responseMap = map[string]any{"output": text}
			}
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolName,
					Response: responseMap,
				},
			}
			// Gemini expects all responses to one turn's calls in a single content.
			if n := len(result); n > 0 && isFunctionResponses(result[n-1]) {
				result[n-1].Parts = append(result[n-1].Parts, part)
				continue
			}
			result = append(result, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{part},
			})
		}
	}
	return result
}

func isFunctionResponses(c *genai.Content) bool {
	return c.Role == genai.RoleUser && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

func convertParts(blocks []hangar.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case hangar.TextBlock:
			parts = append(parts, &genai.Part{Text: bl.Text})
		case hangar.ToolCallBlock:
			// Arguments come from a decoded model reply and are valid JSON.
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			})
		}
	}
	return parts
}

// ConvertTools converts tool descriptors to genai Tools. A schema that is
// not a JSON object is replaced by an empty object schema and logged.
// Exported for testing.
func ConvertTools(tools []hangar.ToolDescriptor, logger *slog.Logger) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				logger.Debug("dropping malformed tool schema", "tool", t.Name, "error", err)
				schema = nil
			}
		}
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ConvertResponse converts a GenerateContent response into an assistant
// message. Tool calls without an id get a generated one.
// Exported for testing.
func ConvertResponse(resp *genai.GenerateContentResponse) (hangar.AssistantMessage, error) {
	if resp == nil {
		return hangar.AssistantMessage{}, errors.New("gemini: empty response")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return hangar.AssistantMessage{}, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return hangar.AssistantMessage{}, errors.New("gemini: no candidates")
	}

	var msg hangar.AssistantMessage
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			switch {
			case p.FunctionCall != nil:
				args, err := json.Marshal(p.FunctionCall.Args)
				if err != nil {
					return hangar.AssistantMessage{}, fmt.Errorf("gemini: invalid tool call arguments: %w", err)
				}
				if p.FunctionCall.Args == nil {
					args = json.RawMessage("{}")
				}
				id := p.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				msg.Content = append(msg.Content, hangar.ToolCallBlock{ID: id, Name: p.FunctionCall.Name, Arguments: args})
			case p.Text != "":
				msg.Content = append(msg.Content, hangar.TextBlock{Text: p.Text})
			}
		}
	}

	msg.StopReason, msg.RawStopReason = mapFinishReason(cand.FinishReason)
	if len(msg.ToolCalls()) > 0 && msg.StopReason == hangar.StopEndTurn {
		msg.StopReason = hangar.StopToolUse
	}
	if u := resp.UsageMetadata; u != nil {
		msg.Usage = hangar.Usage{
			InputTokens:  max(int(u.PromptTokenCount)-int(u.CachedContentTokenCount), 0),
			OutputTokens: max(int(u.CandidatesTokenCount), 0),
		}
	}
	return msg, nil
}

func mapFinishReason(r genai.FinishReason) (hangar.StopReason, string) {
	switch r {
	case "", genai.FinishReasonStop:
		return hangar.StopEndTurn, "end_turn"
	case genai.FinishReasonMaxTokens:
		return hangar.StopLength, string(r)
	default:
		return hangar.StopError, string(r)
	}
}
