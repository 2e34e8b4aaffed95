package bus

import (
	"sync"
	"time"
)

// minDedupeTTL is the floor for the retention window. Anything shorter
// than transport-level redelivery delay would let duplicates through.
const minDedupeTTL = 60 * time.Second

type dedupeEntry struct {
	expiry time.Time
	chatID string
}

// DedupeCache rejects inbound events whose ID was already seen within the
// retention window. Safe for concurrent use.
type DedupeCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	seen       map[string]dedupeEntry // eventID → expiry + owning chat
}

// NewDedupeCache creates a dedupe cache. ttl is clamped to a 60s floor;
// maxEntries caps memory against unbounded ID churn.
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	if ttl < minDedupeTTL {
		ttl = minDedupeTTL
	}
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &DedupeCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		seen:       make(map[string]dedupeEntry),
	}
}

// Accept records eventID under its chat and returns true if it should be
// processed. Returns false for empty IDs and for IDs already recorded
// and unexpired. A duplicate has no side effects: the original entry is
// kept.
func (d *DedupeCache) Accept(eventID, chatID string) bool {
	if eventID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if e, ok := d.seen[eventID]; ok && now.Before(e.expiry) {
		return false
	}

	if len(d.seen) >= d.maxEntries {
		d.prune(now)
	}

	d.seen[eventID] = dedupeEntry{expiry: now.Add(d.ttl), chatID: chatID}
	return true
}

// ForgetChat drops every recorded event ID belonging to one chat, used
// by /reset so the chat starts with no dedup residue. Returns how many
// entries were cleared.
func (d *DedupeCache) ForgetChat(chatID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, e := range d.seen {
		if e.chatID == chatID {
			delete(d.seen, id)
			n++
		}
	}
	return n
}

// prune removes expired entries; if everything is still live, evicts
// arbitrary entries until under the cap. Caller holds the lock.
func (d *DedupeCache) prune(now time.Time) {
	for id, e := range d.seen {
		if !now.Before(e.expiry) {
			delete(d.seen, id)
		}
	}
	for len(d.seen) >= d.maxEntries {
		for id := range d.seen {
			delete(d.seen, id)
			break
		}
	}
}

// Len reports the number of tracked IDs (expired included until pruned).
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
