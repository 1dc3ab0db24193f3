package hangar

import (
	"strings"
	"time"
)

// Transcript is the per-invocation state consumed by one specialist run: the
// domain's system prompt and the ordered messages exchanged so far. It is
// created at invocation start and discarded at invocation end.
type Transcript struct {
	SystemPrompt string
	Messages     []Message
	StartedAt    time.Time
}

// NewTranscript starts a transcript with the question as the first message.
func NewTranscript(systemPrompt string, q Question, now time.Time) *Transcript {
	return &Transcript{
		SystemPrompt: systemPrompt,
		Messages: []Message{UserMessage{
			Content:   []ContentBlock{TextBlock{Text: q.Text}},
			Timestamp: now,
		}},
		StartedAt: now,
	}
}

// Append adds messages to the end of the transcript.
func (t *Transcript) Append(msgs ...Message) {
	t.Messages = append(t.Messages, msgs...)
}

// LastAssistantText returns the text of the most recent assistant message
// that carried any, or "" if none did.
func (t *Transcript) LastAssistantText() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if am, ok := t.Messages[i].(AssistantMessage); ok {
			if text := am.Text(); strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return ""
}
