package bus

import (
	"context"
	"log/slog"
)

const inboundBuffer = 256

// MessageBus is the in-process queue connecting the channel listener to
// the orchestrator consumer loop.
type MessageBus struct {
	inbound chan InboundEvent
}

// NewMessageBus creates a message bus with a bounded inbound queue.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundEvent, inboundBuffer),
	}
}

// PublishInbound enqueues an inbound event. If the queue is full the event
// is dropped rather than blocking the transport read loop.
func (b *MessageBus) PublishInbound(ev InboundEvent) {
	select {
	case b.inbound <- ev:
	default:
		slog.Warn("inbound queue full, dropping event", "chat_id", ev.ChatID, "event_id", ev.EventID)
	}
}

// ConsumeInbound blocks until an event arrives or ctx is cancelled.
// The second return is false when the consumer should stop.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case <-ctx.Done():
		return InboundEvent{}, false
	case ev := <-b.inbound:
		return ev, true
	}
}
