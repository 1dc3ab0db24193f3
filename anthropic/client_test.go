package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textResponse = `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"All clear."}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":3}}`

func userRequest(text string) hangar.Request {
	return hangar.Request{
		Messages: []hangar.Message{
			hangar.UserMessage{Content: []hangar.ContentBlock{hangar.TextBlock{Text: text}}},
		},
	}
}

func TestClient_SendsCorrectRequest(t *testing.T) {
	t.Parallel()

	var captured []byte
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(textResponse))
	}))
	defer srv.Close()

	temp := 0.0
	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	req := userRequest("Which tails are grounded?")
	req.SystemPrompt = "You are a maintenance analyst."
	req.Temperature = &temp
	req.Tools = []hangar.ToolDescriptor{{
		Name:        "fleet___list_aircraft",
		Description: "List aircraft",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"status":{"type":"string"}}}`),
	}}
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "test-key", headers.Get("X-Api-Key"))
	assert.Equal(t, "2023-06-01", headers.Get("Anthropic-Version"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
	assert.InDelta(t, 4096, body["max_tokens"], 0)
	assert.InDelta(t, 0, body["temperature"], 0)
	assert.NotContains(t, body, "anthropic_version")

	system := body["system"].([]any)
	require.Len(t, system, 1)
	sys0 := system[0].(map[string]any)
	assert.Equal(t, "You are a maintenance analyst.", sys0["text"])
	assert.Equal(t, map[string]any{"type": "ephemeral"}, sys0["cache_control"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool0 := tools[0].(map[string]any)
	assert.Equal(t, "fleet___list_aircraft", tool0["name"])
	assert.Equal(t, map[string]any{"type": "ephemeral"}, tool0["cache_control"])
	assert.Contains(t, tool0["input_schema"], "properties")
}

func TestClient_DecodesTextReply(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(textResponse))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	msg, err := client.Complete(context.Background(), userRequest("Hi"))
	require.NoError(t, err)
	assert.Equal(t, "All clear.", msg.Text())
	assert.Equal(t, hangar.StopEndTurn, msg.StopReason)
	assert.Equal(t, "end_turn", msg.RawStopReason)
	assert.Equal(t, hangar.Usage{InputTokens: 12, OutputTokens: 3}, msg.Usage)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestClient_DecodesToolUse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"message","role":"assistant","content":[` +
			`{"type":"text","text":"Checking."},` +
			`{"type":"tool_use","id":"tu_1","name":"fleet___list_aircraft","input":{"status":"aog"}},` +
			`{"type":"tool_use","id":"tu_2","name":"fleet___open_defects","input":{}}` +
			`],"stop_reason":"tool_use","usage":{"input_tokens":5,"output_tokens":9}}`))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	msg, err := client.Complete(context.Background(), userRequest("Hi"))
	require.NoError(t, err)
	assert.Equal(t, hangar.StopToolUse, msg.StopReason)
	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.Equal(t, "fleet___list_aircraft", calls[0].Name)
	assert.JSONEq(t, `{"status":"aog"}`, string(calls[0].Arguments))
	assert.JSONEq(t, `{}`, string(calls[1].Arguments))
	assert.Equal(t, "Checking.", msg.Text())
}

func TestClient_ToolResultMessagesMerged(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(textResponse))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), hangar.Request{
		Messages: []hangar.Message{
			hangar.UserMessage{Content: []hangar.ContentBlock{hangar.TextBlock{Text: "Hi"}}},
			hangar.AssistantMessage{Content: []hangar.ContentBlock{
				hangar.ToolCallBlock{ID: "tc_1", Name: "read", Arguments: json.RawMessage(`{"tail":"N101"}`)},
				hangar.ToolCallBlock{ID: "tc_2", Name: "read", Arguments: json.RawMessage(`{"tail":"N102"}`)},
			}},
			hangar.ToolResultMessage{ToolCallID: "tc_1", ToolName: "read", Content: []hangar.ContentBlock{hangar.TextBlock{Text: "ok"}}},
			hangar.ToolResultMessage{ToolCallID: "tc_2", ToolName: "read", Content: []hangar.ContentBlock{hangar.TextBlock{Text: "down"}}, IsError: true},
		},
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))

	msgs := body["messages"].([]any)
	// UserMessage, AssistantMessage, merged ToolResultMessage = 3 messages
	require.Len(t, msgs, 3)

	toolResultMsg := msgs[2].(map[string]any)
	assert.Equal(t, "user", toolResultMsg["role"])
	blocks := toolResultMsg["content"].([]any)
	require.Len(t, blocks, 2)

	block0 := blocks[0].(map[string]any)
	assert.Equal(t, "tool_result", block0["type"])
	assert.Equal(t, "tc_1", block0["tool_use_id"])
	assert.NotContains(t, block0, "is_error")

	block1 := blocks[1].(map[string]any)
	assert.Equal(t, "tc_2", block1["tool_use_id"])
	assert.Equal(t, true, block1["is_error"])
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: integer above 1 expected"}}`))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), userRequest("Hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestClient_HTTPErrorNonJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), userRequest("Hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_InvalidRequest(t *testing.T) {
	t.Parallel()
	client := anthropic.New("test-key", anthropic.WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Complete(context.Background(), hangar.Request{})
	require.ErrorIs(t, err, hangar.ErrValidation)
}

func TestEncodeBedrock(t *testing.T) {
	t.Parallel()
	req := userRequest("Hi")
	req.SystemPrompt = "system"
	req.MaxTokens = 256
	req.Tools = []hangar.ToolDescriptor{{Name: "t"}}

	data, err := anthropic.EncodeBedrock(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, anthropic.BedrockVersion, body["anthropic_version"])
	assert.NotContains(t, body, "model")
	assert.InDelta(t, 256, body["max_tokens"], 0)
	tool0 := body["tools"].([]any)[0].(map[string]any)
	assert.NotContains(t, tool0, "cache_control")
	assert.Equal(t, map[string]any{"type": "object"}, tool0["input_schema"])
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stop string
		want hangar.StopReason
	}{
		{"end turn", "end_turn", hangar.StopEndTurn},
		{"stop sequence", "stop_sequence", hangar.StopEndTurn},
		{"max tokens", "max_tokens", hangar.StopLength},
		{"tool use", "tool_use", hangar.StopToolUse},
		{"unknown", "refusal", hangar.StopUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := anthropic.DecodeResponse([]byte(`{"type":"message","content":[],"stop_reason":"` + tt.stop + `"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
		})
	}

	t.Run("error body", func(t *testing.T) {
		t.Parallel()
		_, err := anthropic.DecodeResponse([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overloaded_error")
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, err := anthropic.DecodeResponse([]byte(`{`))
		require.Error(t, err)
	})
}
