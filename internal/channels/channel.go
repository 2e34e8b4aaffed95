// Package channels provides the transport abstraction the orchestrator
// talks to: send a text, set presence, plus the inbound event stream.
// Pairing, QR auth and socket lifecycle live behind the bridge.
package channels

import (
	"context"

	"github.com/superzylo/vendo/internal/bus"
)

// Presence states the transport understands.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

// Channel is the interface every transport implementation satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// SendText delivers one outgoing message.
	SendText(ctx context.Context, msg bus.OutboundMessage) error

	// SetPresence publishes a composing/paused indicator for a chat.
	// Best effort: failures are logged, never propagated to the pipeline.
	SetPresence(ctx context.Context, chatID string, state Presence) error

	// IsRunning returns whether the channel is actively processing.
	IsRunning() bool
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
