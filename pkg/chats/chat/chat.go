// Package chat provides the mutable conversation container threaded through
// one orchestrator run.
package chat

import (
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/message"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/role"
)

// Chat is a mutable conversation container. The zero value is ready to use.
// Chat is not safe for concurrent use; callers must synchronize externally.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Since returns a copy of the messages appended at or after index.
func (c *Chat) Since(index int) []message.Message {
	if index >= len(c.messages) {
		return nil
	}
	if index < 0 {
		index = 0
	}
	cp := make([]message.Message, len(c.messages)-index)
	copy(cp, c.messages[index:])
	return cp
}

// Each iterates over messages, calling fn for each one. If fn returns false,
// iteration stops early.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.messages {
		if !fn(i, m) {
			return
		}
	}
}

// SystemPrompt returns the text content of the first system message, or an
// empty string if there is none.
func (c *Chat) SystemPrompt() string {
	for _, m := range c.messages {
		if m.Role == role.System {
			return m.TextContent()
		}
	}
	return ""
}

// ToolResults returns, in order, every successful result produced by the
// named tool anywhere in the conversation.
func (c *Chat) ToolResults(name string) []content.ToolResult {
	var out []content.ToolResult
	for _, m := range c.messages {
		for _, tr := range m.ToolResults() {
			if tr.Name == name && !tr.IsError {
				out = append(out, tr)
			}
		}
	}
	return out
}
