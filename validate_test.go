package hangar_test

import (
	"encoding/json"
	"testing"

	"github.com/fwojciec/hangar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userText(s string) hangar.UserMessage {
	return hangar.UserMessage{Content: []hangar.ContentBlock{hangar.TextBlock{Text: s}}}
}

func TestRequest_Validate_ValidDefaults(t *testing.T) {
	t.Parallel()
	r := hangar.Request{Messages: []hangar.Message{userText("hello")}}
	assert.NoError(t, r.Validate())
}

func TestRequest_Validate_ValidWithAllFields(t *testing.T) {
	t.Parallel()
	temp := 0.0
	r := hangar.Request{
		Model:        "anthropic.claude-3-5-sonnet",
		SystemPrompt: "You are a maintenance specialist.",
		Messages:     []hangar.Message{userText("hello")},
		Tools:        []hangar.ToolDescriptor{{Name: "fleet___read_neo4j_cypher"}},
		MaxTokens:    1024,
		Temperature:  &temp,
	}
	assert.NoError(t, r.Validate())
}

func TestRequest_Validate_TemperatureBounds(t *testing.T) {
	t.Parallel()
	for _, temp := range []float64{-0.1, 2.1} {
		temp := temp
		r := hangar.Request{Messages: []hangar.Message{userText("hi")}, Temperature: &temp}
		assert.ErrorIs(t, r.Validate(), hangar.ErrValidation)
	}
}

func TestRequest_Validate_RequiresMessages(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, hangar.Request{}.Validate(), hangar.ErrValidation)
}

func TestRequest_Validate_NegativeMaxTokens(t *testing.T) {
	t.Parallel()
	r := hangar.Request{Messages: []hangar.Message{userText("hi")}, MaxTokens: -1}
	assert.ErrorIs(t, r.Validate(), hangar.ErrValidation)
}

func TestRequest_Validate_DuplicateTool(t *testing.T) {
	t.Parallel()
	r := hangar.Request{
		Messages: []hangar.Message{userText("hi")},
		Tools:    []hangar.ToolDescriptor{{Name: "a"}, {Name: "a"}},
	}
	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, hangar.ErrValidation)
	assert.Contains(t, err.Error(), `"a"`)
}

func TestValidateMessage(t *testing.T) {
	t.Parallel()

	t.Run("tool call in user message rejected", func(t *testing.T) {
		t.Parallel()
		msg := hangar.UserMessage{Content: []hangar.ContentBlock{hangar.ToolCallBlock{ID: "1", Name: "x"}}}
		assert.ErrorIs(t, hangar.ValidateMessage(msg), hangar.ErrValidation)
	})

	t.Run("tool call in assistant message accepted", func(t *testing.T) {
		t.Parallel()
		msg := hangar.AssistantMessage{Content: []hangar.ContentBlock{
			hangar.TextBlock{Text: "checking"},
			hangar.ToolCallBlock{ID: "1", Name: "x", Arguments: json.RawMessage(`{}`)},
		}}
		assert.NoError(t, hangar.ValidateMessage(msg))
	})

	t.Run("tool result requires call id", func(t *testing.T) {
		t.Parallel()
		msg := hangar.ToolResultMessage{ToolName: "x"}
		assert.ErrorIs(t, hangar.ValidateMessage(msg), hangar.ErrValidation)
	})
}
