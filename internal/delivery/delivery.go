// Package delivery sends replies at a human pace: typing presence
// first, a short randomized delay, then the message, with a minimum
// gap between consecutive sends to the same chat.
package delivery

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/channels"
)

// Options tune the pacing. Zero values fall back to defaults.
type Options struct {
	TypingMin time.Duration // lower bound of the simulated typing pause
	TypingMax time.Duration // upper bound
	MinGap    time.Duration // minimum spacing between sends to one chat
}

const (
	defaultTypingMin = 800 * time.Millisecond
	defaultTypingMax = 2500 * time.Millisecond
	defaultMinGap    = 600 * time.Millisecond
)

// Sender paces outbound messages over a channel.
type Sender struct {
	channel channels.Channel
	opts    Options

	mu       sync.Mutex
	lastSend map[string]time.Time
}

func NewSender(ch channels.Channel, opts Options) *Sender {
	if opts.TypingMin <= 0 {
		opts.TypingMin = defaultTypingMin
	}
	if opts.TypingMax < opts.TypingMin {
		opts.TypingMax = opts.TypingMin
	}
	if opts.MinGap <= 0 {
		opts.MinGap = defaultMinGap
	}
	return &Sender{
		channel:  ch,
		opts:     opts,
		lastSend: make(map[string]time.Time),
	}
}

// Deliver sends each message in order with humanized pacing. A failed
// send is logged and the rest still go out; the first context error
// aborts what remains.
func (s *Sender) Deliver(ctx context.Context, chatID string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}

	if err := s.channel.SetPresence(ctx, chatID, channels.PresenceComposing); err != nil {
		slog.Debug("presence update failed", "chat", chatID, "error", err)
	}
	defer func() {
		if err := s.channel.SetPresence(context.WithoutCancel(ctx), chatID, channels.PresencePaused); err != nil {
			slog.Debug("presence update failed", "chat", chatID, "error", err)
		}
	}()

	for i, msg := range messages {
		if err := s.waitGap(ctx, chatID); err != nil {
			return err
		}
		if err := sleepCtx(ctx, s.typingDelay(msg)); err != nil {
			return err
		}

		if err := s.channel.SendText(ctx, bus.OutboundMessage{ChatID: chatID, Content: msg}); err != nil {
			slog.Error("send failed", "chat", chatID, "message_index", i, "error", err)
			continue
		}
		s.markSent(chatID)
	}
	return nil
}

// typingDelay picks a pause inside the configured range, nudged longer
// for longer messages so the pacing tracks what a human would type.
func (s *Sender) typingDelay(msg string) time.Duration {
	span := s.opts.TypingMax - s.opts.TypingMin
	delay := s.opts.TypingMin
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if len(msg) > 120 {
		delay += 300 * time.Millisecond
	}
	return delay
}

func (s *Sender) waitGap(ctx context.Context, chatID string) error {
	s.mu.Lock()
	last, ok := s.lastSend[chatID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	remaining := s.opts.MinGap - time.Since(last)
	if remaining <= 0 {
		return nil
	}
	return sleepCtx(ctx, remaining)
}

func (s *Sender) markSent(chatID string) {
	s.mu.Lock()
	s.lastSend[chatID] = time.Now()
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
