// Package channels connects chat platforms to the generation engine.
// Each channel turns platform events into inbound bus messages and delivers
// the engine's replies, including generated media, back to the chat.
package channels

import (
	"strings"

	"github.com/wavespeedai/wavebot-go/pkg/bus"
)

// Channel is one chat platform connection.
type Channel interface {
	Start() error
	Stop() error
	Send(msg bus.OutboundMessage) error
	Name() string
}

// BaseChannel carries the pieces every platform connection shares: the bus,
// the per-channel config, and the sender allow list.
type BaseChannel struct {
	Config    interface{}
	Bus       *bus.MessageBus
	AllowFrom []string
}

// IsAllowed reports whether a sender may use the bot. An empty allow list
// admits everyone. Sender IDs may be composite ("id|username"); any part
// matching an allow entry admits the sender.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range c.AllowFrom {
		if allowed == senderID {
			return true
		}
		for _, part := range strings.Split(senderID, "|") {
			if part == allowed {
				return true
			}
		}
	}
	return false
}

// HandleMessage forwards a platform event to the engine. Media carries
// source attachments, such as the image of an image-to-video request.
// Messages from senders outside the allow list are dropped.
func (c *BaseChannel) HandleMessage(channelName, senderID, chatID, content string, media []string, metadata map[string]interface{}) {
	if !c.IsAllowed(senderID) {
		return
	}
	c.Bus.PublishInbound(bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		Metadata: metadata,
	})
}
