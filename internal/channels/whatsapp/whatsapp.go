// Package whatsapp connects to a WhatsApp bridge via WebSocket.
// The bridge (whatsapp-web.js based) owns the WhatsApp protocol, QR
// pairing and credential storage; this channel only exchanges JSON
// messages over the socket.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/channels"
)

// statusBroadcast is WhatsApp's story feed pseudo-chat; never a
// conversation.
const statusBroadcast = "status@broadcast"

// Channel is the WebSocket client for the WhatsApp bridge.
type Channel struct {
	bridgeURL string
	router    bus.EventRouter

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a WhatsApp channel publishing inbound events to router.
func New(bridgeURL string, router bus.EventRouter) (*Channel, error) {
	if bridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{bridgeURL: bridgeURL, router: router}, nil
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "whatsapp" }

// IsRunning returns whether the channel is actively processing.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start connects to the bridge and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.bridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// The listen loop keeps retrying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

// Stop gracefully shuts down the channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.running = false
	return nil
}

// SendText delivers one outgoing message to the bridge.
func (c *Channel) SendText(_ context.Context, msg bus.OutboundMessage) error {
	return c.write(map[string]any{
		"type":    "message",
		"to":      msg.ChatID,
		"content": msg.Content,
	})
}

// SetPresence publishes a composing/paused indicator for a chat.
func (c *Channel) SetPresence(_ context.Context, chatID string, state channels.Presence) error {
	return c.write(map[string]any{
		"type":  "presence",
		"to":    chatID,
		"state": string(state),
	})
}

func (c *Channel) write(payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send to whatsapp bridge: %w", err)
	}
	return nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.bridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.bridgeURL)
	return nil
}

// listenLoop reads bridge messages with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second // reset on success
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.connected = false
			c.mu.Unlock()

			continue
		}

		var msg bridgeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("invalid whatsapp bridge JSON", "error", err)
			continue
		}

		if msg.Type == "message" {
			c.handleIncoming(msg)
		}
	}
}

// bridgeMessage is the bridge's inbound wire format.
type bridgeMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Chat      string `json:"chat"`
	From      string `json:"from"`
	FromSelf  bool   `json:"from_self"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

// handleIncoming converts one bridge message into an inbound event.
// Self-authored messages and the status broadcast never reach the
// pipeline.
func (c *Channel) handleIncoming(msg bridgeMessage) {
	if msg.From == "" || msg.Content == "" {
		return
	}

	chatID := msg.Chat
	if chatID == "" {
		chatID = msg.From
	}
	if msg.FromSelf || chatID == statusBroadcast {
		return
	}

	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.Unix(msg.Timestamp, 0)
	}

	slog.Debug("whatsapp message received",
		"chat_id", chatID,
		"sender_id", msg.From,
		"preview", channels.Truncate(msg.Content, 50),
	)

	c.router.PublishInbound(bus.InboundEvent{
		EventID:   msg.ID,
		ChatID:    chatID,
		SenderID:  msg.From,
		FromSelf:  msg.FromSelf,
		Text:      msg.Content,
		Timestamp: ts,
	})
}
