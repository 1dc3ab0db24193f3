package json

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/hangar"
)

// maxInvocationBytes bounds the size of an invocation request body.
const maxInvocationBytes = 1 << 20

// InvocationRequest is the body of an invocation.
type InvocationRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// AnswerBlock is one block of an invocation response.
type AnswerBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// AnswerResponse is the body of a successful invocation.
type AnswerResponse struct {
	Content    []AnswerBlock `json:"content"`
	Domain     string        `json:"domain"`
	Degraded   bool          `json:"degraded"`
	Iterations int           `json:"iterations"`
	Usage      *usageDTO     `json:"usage,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
}

// Text returns the final answer text, which is always the last block.
func (r AnswerResponse) Text() string {
	if n := len(r.Content); n > 0 && r.Content[n-1].Type == "text" {
		return r.Content[n-1].Text
	}
	return ""
}

// ErrorResponse is the body of a failed invocation.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// DecodeInvocation reads an invocation request and returns its question.
// A missing or blank prompt is a validation error.
func DecodeInvocation(r io.Reader) (hangar.Question, error) {
	var req InvocationRequest
	dec := json.NewDecoder(io.LimitReader(r, maxInvocationBytes))
	if err := dec.Decode(&req); err != nil {
		return hangar.Question{}, fmt.Errorf("decode invocation: %v: %w", err, hangar.ErrValidation)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return hangar.Question{}, fmt.Errorf("prompt is required: %w", hangar.ErrValidation)
	}
	return hangar.Question{Text: req.Prompt, SessionID: req.SessionID}, nil
}

// EncodeInvocation encodes q as an invocation request body.
func EncodeInvocation(q hangar.Question) ([]byte, error) {
	return json.Marshal(InvocationRequest{Prompt: q.Text, SessionID: q.SessionID})
}

// NewAnswerResponse converts an answer into its response form. The
// investigation trail (tool requests, their results and the narration that
// accompanied them) precedes a final text block holding the answer.
func NewAnswerResponse(a hangar.Answer, requestID string) AnswerResponse {
	resp := AnswerResponse{
		Content:    []AnswerBlock{},
		Domain:     string(a.Domain),
		Degraded:   a.Degraded,
		Iterations: a.Iterations,
		Usage:      newUsageDTO(a.Usage),
		RequestID:  requestID,
	}
	for _, msg := range a.Messages {
		switch m := msg.(type) {
		case hangar.AssistantMessage:
			calls := m.ToolCalls()
			if len(calls) == 0 {
				continue
			}
			if text := m.Text(); text != "" {
				resp.Content = append(resp.Content, AnswerBlock{Type: "text", Text: text})
			}
			for _, tc := range calls {
				input := tc.Arguments
				if len(input) == 0 || !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				resp.Content = append(resp.Content, AnswerBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
		case hangar.ToolResultMessage:
			resp.Content = append(resp.Content, AnswerBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Text:      hangar.JoinText(m.Content),
				IsError:   m.IsError,
				ErrorKind: string(m.ErrorKind),
			})
		}
	}
	resp.Content = append(resp.Content, AnswerBlock{Type: "text", Text: a.Text})
	return resp
}

// MarshalAnswer encodes an answer as an invocation response body.
func MarshalAnswer(a hangar.Answer, requestID string) ([]byte, error) {
	return json.Marshal(NewAnswerResponse(a, requestID))
}

// UnmarshalAnswer decodes an invocation response body.
func UnmarshalAnswer(data []byte) (AnswerResponse, error) {
	var resp AnswerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return AnswerResponse{}, fmt.Errorf("unmarshal answer: %w", err)
	}
	return resp, nil
}
