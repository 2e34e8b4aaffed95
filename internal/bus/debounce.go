package bus

import (
	"sync"
	"time"
)

// FlushFunc receives the bundled turn once its quiet period elapses.
type FlushFunc func(Bundle)

// InboundDebouncer merges rapid-fire fragments from one sender into a
// single logical turn. A turn flushes when no new fragment arrives within
// the quiet period, or immediately when a different sender posts to the
// same chat (preserving conversational order).
//
// At most one pending turn exists per chat; its sender is part of the
// turn identity.
type InboundDebouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	flush   FlushFunc
	pending map[string]*pendingTurn // chatID → live turn
	stopped bool
}

type pendingTurn struct {
	senderID  string
	fragments []Fragment
	timer     *time.Timer
}

// NewInboundDebouncer creates a debouncer that calls flush with each
// completed bundle. flush runs on a timer goroutine (or the Push caller
// on cross-sender flushes) and should hand off quickly.
func NewInboundDebouncer(quiet time.Duration, flush FlushFunc) *InboundDebouncer {
	if quiet <= 0 {
		quiet = 450 * time.Millisecond
	}
	return &InboundDebouncer{
		quiet:   quiet,
		flush:   flush,
		pending: make(map[string]*pendingTurn),
	}
}

// Push buffers one fragment and resets the chat's quiet timer.
func (d *InboundDebouncer) Push(ev InboundEvent) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	recv := ev.Timestamp
	if recv.IsZero() {
		recv = time.Now()
	}
	frag := Fragment{Text: ev.Text, ReceivedAt: recv}

	turn, ok := d.pending[ev.ChatID]
	if ok && turn.senderID != ev.SenderID {
		// Another participant spoke: close the open turn first so bundles
		// reach the queue in arrival order.
		turn.timer.Stop()
		delete(d.pending, ev.ChatID)
		bundle := turn.bundle(ev.ChatID)
		d.mu.Unlock()
		d.flush(bundle)
		d.mu.Lock()
		turn, ok = nil, false
	}

	if !ok || turn == nil {
		t := &pendingTurn{senderID: ev.SenderID}
		t.timer = time.AfterFunc(d.quiet, func() { d.fire(ev.ChatID, t) })
		d.pending[ev.ChatID] = t
		turn = t
	} else {
		turn.timer.Reset(d.quiet)
	}
	turn.fragments = append(turn.fragments, frag)
	d.mu.Unlock()
}

// fire flushes a turn whose quiet timer elapsed. The turn identity check
// guards against a timer racing a cross-sender flush that already
// replaced the map entry.
func (d *InboundDebouncer) fire(chatID string, turn *pendingTurn) {
	d.mu.Lock()
	current, ok := d.pending[chatID]
	if !ok || current != turn || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, chatID)
	bundle := turn.bundle(chatID)
	d.mu.Unlock()

	d.flush(bundle)
}

// Cancel discards any pending turn for a chat without flushing it.
// Used by /reset so buffered fragments never reach the pipeline.
func (d *InboundDebouncer) Cancel(chatID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	turn, ok := d.pending[chatID]
	if !ok {
		return false
	}
	turn.timer.Stop()
	delete(d.pending, chatID)
	return true
}

// Stop cancels all pending turns and rejects further pushes.
func (d *InboundDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for chatID, turn := range d.pending {
		turn.timer.Stop()
		delete(d.pending, chatID)
	}
}

func (t *pendingTurn) bundle(chatID string) Bundle {
	return Bundle{
		ChatID:    chatID,
		SenderID:  t.senderID,
		Fragments: t.fragments,
	}
}
