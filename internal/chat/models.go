// Package chat implements the conversation flow: it keeps conversation
// history, prompts the model, and turns streamed responses into materialized
// projects.
package chat

import "time"

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn in a conversation. Assistant messages store the full
// raw model response, fenced file blocks included, so history replays keep
// the file context, plus the paths of the files that response touched.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	FilePaths []string    `json:"filePaths,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation groups messages and, once files have been generated, the
// project they belong to.
type Conversation struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId,omitempty"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to callers.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		msg := *m
		if m.FilePaths != nil {
			msg.FilePaths = append([]string(nil), m.FilePaths...)
		}
		out.Messages[i] = &msg
	}
	return &out
}
