package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/superzylo/vendo/internal/bus"
	"github.com/superzylo/vendo/internal/channels"
)

type fakeChannel struct {
	mu        sync.Mutex
	calls     int
	sent      []bus.OutboundMessage
	sentAt    []time.Time
	presences []channels.Presence
	failOn    int // 1-based index of the send call that errors, 0 = never
}

func (f *fakeChannel) Name() string                { return "fake" }
func (f *fakeChannel) Start(context.Context) error { return nil }
func (f *fakeChannel) Stop(context.Context) error  { return nil }
func (f *fakeChannel) IsRunning() bool             { return true }

func (f *fakeChannel) SendText(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return errors.New("socket closed")
	}
	f.sent = append(f.sent, msg)
	f.sentAt = append(f.sentAt, time.Now())
	return nil
}

func (f *fakeChannel) SetPresence(_ context.Context, _ string, state channels.Presence) error {
	f.mu.Lock()
	f.presences = append(f.presences, state)
	f.mu.Unlock()
	return nil
}

func fastOpts() Options {
	return Options{
		TypingMin: time.Millisecond,
		TypingMax: 2 * time.Millisecond,
		MinGap:    time.Millisecond,
	}
}

func TestDeliverSendsInOrderWithPresence(t *testing.T) {
	ch := &fakeChannel{}
	s := NewSender(ch, fastOpts())

	err := s.Deliver(context.Background(), "chat-1", []string{"uno", "dos", "tres"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(ch.sent) != 3 {
		t.Fatalf("sent %d messages", len(ch.sent))
	}
	for i, want := range []string{"uno", "dos", "tres"} {
		if ch.sent[i].Content != want || ch.sent[i].ChatID != "chat-1" {
			t.Fatalf("sent[%d] = %+v", i, ch.sent[i])
		}
	}

	if len(ch.presences) != 2 ||
		ch.presences[0] != channels.PresenceComposing ||
		ch.presences[1] != channels.PresencePaused {
		t.Fatalf("presences = %v", ch.presences)
	}
}

func TestDeliverContinuesPastSendFailure(t *testing.T) {
	ch := &fakeChannel{failOn: 2}
	s := NewSender(ch, fastOpts())

	err := s.Deliver(context.Background(), "chat-1", []string{"uno", "dos", "tres"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(ch.sent) != 2 {
		t.Fatalf("sent %d messages, want the 2 that did not fail", len(ch.sent))
	}
	if ch.sent[0].Content != "uno" || ch.sent[1].Content != "tres" {
		t.Fatalf("sent = %+v", ch.sent)
	}
}

func TestDeliverRespectsMinGap(t *testing.T) {
	ch := &fakeChannel{}
	s := NewSender(ch, Options{
		TypingMin: time.Millisecond,
		TypingMax: time.Millisecond,
		MinGap:    40 * time.Millisecond,
	})

	if err := s.Deliver(context.Background(), "chat-1", []string{"uno", "dos"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(ch.sentAt) != 2 {
		t.Fatalf("sent %d messages", len(ch.sentAt))
	}
	if gap := ch.sentAt[1].Sub(ch.sentAt[0]); gap < 40*time.Millisecond {
		t.Fatalf("inter-send gap = %v, want >= 40ms", gap)
	}
}

func TestDeliverAbortsOnCancelledContext(t *testing.T) {
	ch := &fakeChannel{}
	s := NewSender(ch, Options{
		TypingMin: time.Hour,
		TypingMax: time.Hour,
		MinGap:    time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Deliver(ctx, "chat-1", []string{"uno"}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not abort")
	}
	if len(ch.sent) != 0 {
		t.Fatalf("sent %d messages after cancel", len(ch.sent))
	}
}

func TestDeliverNoMessages(t *testing.T) {
	ch := &fakeChannel{}
	s := NewSender(ch, fastOpts())
	if err := s.Deliver(context.Background(), "chat-1", nil); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(ch.presences) != 0 {
		t.Fatal("empty delivery should not touch presence")
	}
}
