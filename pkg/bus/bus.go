// Package bus carries messages between chat channels and the generation
// engine. Channels publish user requests inbound; the engine publishes
// replies and finished generations outbound.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Generation replies can carry several media URLs and arrive in bursts when
// parallel tasks finish close together, so both directions are buffered.
const (
	inboundBuffer  = 100
	outboundBuffer = 100
)

// MessageBus decouples chat channels from the generation engine. Channels
// push InboundMessages and subscribe for the outbound traffic addressed to
// them by name; the engine consumes inbound and publishes outbound.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu     sync.RWMutex
	routes map[string][]func(OutboundMessage)

	done chan struct{}
}

// NewMessageBus creates a bus with no subscribers.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, inboundBuffer),
		outbound: make(chan OutboundMessage, outboundBuffer),
		routes:   make(map[string][]func(OutboundMessage)),
		done:     make(chan struct{}),
	}
}

// PublishInbound hands a user request to the engine.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound exposes the inbound stream for the engine loop.
func (b *MessageBus) ConsumeInbound() <-chan InboundMessage {
	return b.inbound
}

// PublishOutbound queues a reply for delivery to its channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound registers a delivery callback for one channel name.
// A channel may register more than once; every callback sees every message.
func (b *MessageBus) SubscribeOutbound(channel string, callback func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[channel] = append(b.routes[channel], callback)
}

// DispatchOutbound routes outbound messages to their channel's subscribers
// until Stop. Run it in a goroutine.
func (b *MessageBus) DispatchOutbound() {
	for {
		select {
		case msg := <-b.outbound:
			b.deliver(msg)
		case <-b.done:
			return
		}
	}
}

func (b *MessageBus) deliver(msg OutboundMessage) {
	b.mu.RLock()
	callbacks := b.routes[msg.Channel]
	b.mu.RUnlock()

	// Cron jobs and stale sessions can address a channel that is disabled
	// in the current config; that is worth a trace in the log.
	if len(callbacks) == 0 {
		zap.S().Warnf("No subscriber for channel %q, dropping message to chat %s", msg.Channel, msg.ChatID)
		return
	}

	for _, cb := range callbacks {
		go func(callback func(OutboundMessage)) {
			defer func() {
				if r := recover(); r != nil {
					zap.S().Errorf("Outbound delivery to %s panicked: %v", msg.Channel, r)
				}
			}()
			callback(msg)
		}(cb)
	}
}

// Stop ends the dispatch loop. Pending outbound messages are dropped.
func (b *MessageBus) Stop() {
	close(b.done)
}
