package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedChats caps the number of tracked chats to prevent memory
// exhaustion from rotating chat IDs.
const maxTrackedChats = 4096

type chatLimit struct {
	lim      *rate.Limiter
	warned   bool
	lastSeen time.Time
}

// TurnLimiter throttles how often each chat may trigger a model-backed
// turn: one trigger per window, with at most one user-visible warning
// until the chat next gets through. Safe for concurrent use.
type TurnLimiter struct {
	mu     sync.Mutex
	window time.Duration
	chats  map[string]*chatLimit
}

// NewTurnLimiter creates a limiter with the given per-chat window.
func NewTurnLimiter(window time.Duration) *TurnLimiter {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &TurnLimiter{
		window: window,
		chats:  make(map[string]*chatLimit),
	}
}

// Acquire attempts to claim the chat's trigger slot. On success it
// returns (true, 0) and consumes the slot. When limited it returns
// (false, remaining) where remaining is how long until the slot frees;
// the caller reschedules the turn rather than dropping it.
func (t *TurnLimiter) Acquire(chatID string) (ok bool, remaining time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	e := t.entry(chatID, now)

	r := e.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	e.warned = false
	return true, 0
}

// MarkTriggered consumes the chat's slot unconditionally, pushing the
// next allowed trigger one window out. Used for command replies, which
// count against the window but are never suppressed by it.
func (t *TurnLimiter) MarkTriggered(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	e := t.entry(chatID, now)
	e.lim.ReserveN(now, 1)
}

// MaybeWarn reports whether a throttle notice should be sent. It returns
// true at most once per limited span; Acquire success re-arms it.
func (t *TurnLimiter) MaybeWarn(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, okc := t.chats[chatID]
	if !okc || e.warned {
		return false
	}
	e.warned = true
	return true
}

// Reset forgets a chat's window state.
func (t *TurnLimiter) Reset(chatID string) {
	t.mu.Lock()
	delete(t.chats, chatID)
	t.mu.Unlock()
}

// entry returns the chat's limiter, creating it on first use. Caller
// holds the lock.
func (t *TurnLimiter) entry(chatID string, now time.Time) *chatLimit {
	if len(t.chats) >= maxTrackedChats {
		t.prune(now)
	}
	e, okc := t.chats[chatID]
	if !okc {
		e = &chatLimit{lim: rate.NewLimiter(rate.Every(t.window), 1)}
		t.chats[chatID] = e
	}
	e.lastSeen = now
	return e
}

// prune drops chats idle for several windows; hard-evicts if still at
// cap. Caller holds the lock.
func (t *TurnLimiter) prune(now time.Time) {
	idle := 10 * t.window
	for id, e := range t.chats {
		if now.Sub(e.lastSeen) >= idle {
			delete(t.chats, id)
		}
	}
	for len(t.chats) >= maxTrackedChats {
		for id := range t.chats {
			delete(t.chats, id)
			break
		}
	}
}
