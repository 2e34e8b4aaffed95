// Package bus carries messages between the WhatsApp channel and the
// orchestration pipeline: an in-process inbound queue plus the inbound
// hygiene layers (dedupe cache, burst debouncer).
package bus

import (
	"context"
	"time"
)

// InboundEvent is one raw chat event received from the transport.
type InboundEvent struct {
	EventID   string    `json:"event_id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	FromSelf  bool      `json:"from_self,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Fragment is one debounced piece of a pending turn.
type Fragment struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Bundle is the ordered set of fragments that form one logical user turn
// for a (chat, sender) pair, produced by the InboundDebouncer on flush.
type Bundle struct {
	ChatID    string     `json:"chat_id"`
	SenderID  string     `json:"sender_id"`
	Fragments []Fragment `json:"fragments"`
}

// Texts returns the fragment texts in receive order.
func (b Bundle) Texts() []string {
	out := make([]string, len(b.Fragments))
	for i, f := range b.Fragments {
		out[i] = f.Text
	}
	return out
}

// OutboundMessage is one message to be delivered to the transport.
type OutboundMessage struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// EventRouter abstracts inbound event routing between the channel and the
// orchestrator, so both sides can be tested against a fake.
type EventRouter interface {
	PublishInbound(ev InboundEvent)
	ConsumeInbound(ctx context.Context) (InboundEvent, bool)
}
