package gemini_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertMessages_UserMessage(t *testing.T) {
	t.Parallel()
	msgs := []hangar.Message{
		hangar.UserMessage{Content: []hangar.ContentBlock{hangar.TextBlock{Text: "Hello"}}},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 1)
	assert.Equal(t, "user", got[0].Role)
	require.Len(t, got[0].Parts, 1)
	assert.Equal(t, "Hello", got[0].Parts[0].Text)
}

func TestConvertMessages_ToolCallAndResults(t *testing.T) {
	t.Parallel()
	msgs := []hangar.Message{
		hangar.AssistantMessage{Content: []hangar.ContentBlock{
			hangar.ToolCallBlock{ID: "call_1", Name: "fleet___component", Arguments: json.RawMessage(`{"id":"C-7"}`)},
			hangar.ToolCallBlock{ID: "call_2", Name: "fleet___sensor", Arguments: json.RawMessage(`{"id":"S-2"}`)},
		}},
		hangar.ToolResultMessage{
			ToolCallID: "call_1",
			ToolName:   "fleet___component",
			Content:    []hangar.ContentBlock{hangar.TextBlock{Text: "fuel pump"}},
		},
		hangar.ToolResultMessage{
			ToolCallID: "call_2",
			ToolName:   "fleet___sensor",
			Content:    []hangar.ContentBlock{hangar.TextBlock{Text: "gateway down"}},
			IsError:    true,
		},
	}
	got := gemini.ConvertMessages(msgs)
	require.Len(t, got, 2)

	assert.Equal(t, "model", got[0].Role)
	require.Len(t, got[0].Parts, 2)
	require.NotNil(t, got[0].Parts[0].FunctionCall)
	assert.Equal(t, "call_1", got[0].Parts[0].FunctionCall.ID)
	assert.Equal(t, "C-7", got[0].Parts[0].FunctionCall.Args["id"])

	// Both results share one user content.
	assert.Equal(t, "user", got[1].Role)
	require.Len(t, got[1].Parts, 2)
	ok := got[1].Parts[0].FunctionResponse
	assert.Equal(t, "call_1", ok.ID)
	assert.Equal(t, "fuel pump", ok.Response["output"])
	failed := got[1].Parts[1].FunctionResponse
	assert.Equal(t, "call_2", failed.ID)
	assert.Equal(t, "gateway down", failed.Response["error"])
	assert.Nil(t, failed.Response["output"])
}

func TestConvertTools(t *testing.T) {
	t.Parallel()
	tools := []hangar.ToolDescriptor{
		{Name: "read_cypher", Description: "Run a read query", InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)},
		{Name: "schema", Description: "Describe the graph"},
	}
	got := gemini.ConvertTools(tools, slog.New(slog.DiscardHandler))
	require.Len(t, got, 1) // single genai.Tool with multiple declarations
	require.Len(t, got[0].FunctionDeclarations, 2)
	assert.Equal(t, "read_cypher", got[0].FunctionDeclarations[0].Name)
	assert.Equal(t, "Run a read query", got[0].FunctionDeclarations[0].Description)
	assert.Equal(t, map[string]any{"type": "object"}, got[0].FunctionDeclarations[1].ParametersJsonSchema)
}

func TestConvertTools_MalformedSchema(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tools := []hangar.ToolDescriptor{
		{Name: "fleet___broken", InputSchema: json.RawMessage(`{"type":`)},
	}

	got := gemini.ConvertTools(tools, logger)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"type": "object"}, got[0].FunctionDeclarations[0].ParametersJsonSchema)
	assert.Contains(t, buf.String(), "dropping malformed tool schema")
	assert.Contains(t, buf.String(), "fleet___broken")
}

func TestConvertTools_Empty(t *testing.T) {
	t.Parallel()
	got := gemini.ConvertTools(nil, slog.New(slog.DiscardHandler))
	assert.Nil(t, got)
}

func TestConvertResponse_ToolCalls(t *testing.T) {
	t.Parallel()
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking about it", Thought: true},
				{Text: "Looking up."},
				{FunctionCall: &genai.FunctionCall{ID: "sdk_id_1", Name: "read", Args: map[string]any{"tail": "N101"}}},
				{FunctionCall: &genai.FunctionCall{Name: "schema"}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:        210,
			CandidatesTokenCount:    5,
			CachedContentTokenCount: 200,
		},
	}
	msg, err := gemini.ConvertResponse(resp)
	require.NoError(t, err)

	assert.Equal(t, "Looking up.", msg.Text())
	assert.Equal(t, hangar.StopToolUse, msg.StopReason)
	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "sdk_id_1", calls[0].ID)
	assert.JSONEq(t, `{"tail":"N101"}`, string(calls[0].Arguments))
	assert.True(t, strings.HasPrefix(calls[1].ID, "call_"), "generated ID should be prefixed")
	assert.JSONEq(t, `{}`, string(calls[1].Arguments))
	assert.Equal(t, hangar.Usage{InputTokens: 10, OutputTokens: 5}, msg.Usage)
}

func TestConvertResponse_StopReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason genai.FinishReason
		want   hangar.StopReason
		raw    string
	}{
		{"unset", "", hangar.StopEndTurn, "end_turn"},
		{"stop", genai.FinishReasonStop, hangar.StopEndTurn, "end_turn"},
		{"max tokens", genai.FinishReasonMaxTokens, hangar.StopLength, string(genai.FinishReasonMaxTokens)},
		{"safety", genai.FinishReasonSafety, hangar.StopError, string(genai.FinishReasonSafety)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := gemini.ConvertResponse(&genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content:      &genai.Content{Parts: []*genai.Part{{Text: "hi"}}},
					FinishReason: tt.reason,
				}},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
			assert.Equal(t, tt.raw, msg.RawStopReason)
		})
	}
}

func TestConvertResponse_UsageClampsNegative(t *testing.T) {
	t.Parallel()
	msg, err := gemini.ConvertResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hi"}}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:        5,
			CandidatesTokenCount:    3,
			CachedContentTokenCount: 100, // more cached than total
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Usage.InputTokens)
	assert.Equal(t, 3, msg.Usage.OutputTokens)
}

func TestConvertResponse_Errors(t *testing.T) {
	t.Parallel()

	t.Run("prompt blocked", func(t *testing.T) {
		t.Parallel()
		_, err := gemini.ConvertResponse(&genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason: genai.BlockedReasonSafety,
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prompt blocked")
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		_, err := gemini.ConvertResponse(&genai.GenerateContentResponse{})
		require.Error(t, err)
	})

	t.Run("unmarshalable arguments", func(t *testing.T) {
		t.Parallel()
		_, err := gemini.ConvertResponse(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{FunctionCall: &genai.FunctionCall{ID: "tc_bad", Name: "read", Args: map[string]any{"val": math.NaN()}}},
				}},
			}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tool call arguments")
	})
}

func TestClient_Complete(t *testing.T) {
	t.Parallel()

	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Two aircraft are grounded."}]},"finishReason":"STOP"}],` +
			`"usageMetadata":{"promptTokenCount":30,"candidatesTokenCount":6}}`))
	}))
	defer srv.Close()

	client, err := gemini.New(context.Background(), "test-key",
		gemini.WithBaseURL(srv.URL),
		gemini.WithModel("gemini-test"),
		gemini.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	msg, err := client.Complete(context.Background(), hangar.Request{
		SystemPrompt: "You are a maintenance analyst.",
		Messages: []hangar.Message{
			hangar.UserMessage{Content: []hangar.ContentBlock{hangar.TextBlock{Text: "How many aircraft are grounded?"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Two aircraft are grounded.", msg.Text())
	assert.Equal(t, hangar.StopEndTurn, msg.StopReason)
	assert.Equal(t, hangar.Usage{InputTokens: 30, OutputTokens: 6}, msg.Usage)
	assert.Contains(t, path, "gemini-test:generateContent")
	assert.Contains(t, body, "systemInstruction")
}

func TestClient_CompleteInvalidRequest(t *testing.T) {
	t.Parallel()
	client, err := gemini.New(context.Background(), "test-key", gemini.WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), hangar.Request{})
	require.ErrorIs(t, err, hangar.ErrValidation)
}
