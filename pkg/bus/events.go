package bus

import (
	"time"
)

// InboundMessage represents a message received from a chat channel. Media
// carries attached files the sender wants generated from, such as the source
// image of an image-to-video request.
type InboundMessage struct {
	Channel   string                 `json:"channel"`
	SenderID  string                 `json:"sender_id"`
	ChatID    string                 `json:"chat_id"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Media     []string               `json:"media"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// SessionKey names the chat this message belongs to. Per-chat state, such
// as the selected model, is keyed by it.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage represents a message to send to a chat channel. Media
// carries generated outputs as URLs or local file paths.
type OutboundMessage struct {
	Channel  string                 `json:"channel"`
	ChatID   string                 `json:"chat_id"`
	Content  string                 `json:"content"`
	ReplyTo  string                 `json:"reply_to,omitempty"`
	Media    []string               `json:"media"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NewReply builds a plain text response to an inbound message.
func NewReply(msg InboundMessage, content string) OutboundMessage {
	return OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	}
}

// NewTaskReply builds the outbound message delivering a finished generation.
// The task ID travels in the metadata so channels can thread updates.
func NewTaskReply(channel, chatID, taskID, caption string, media []string) OutboundMessage {
	return OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: caption,
		Media:   media,
		Metadata: map[string]interface{}{
			"task_id": taskID,
		},
	}
}
