package agent

import (
	"sync"

	"github.com/superzylo/vendo/internal/providers"
)

// maxHistoryMessages bounds the per-chat memory sent to the model.
// Older turns fall off; the funnel session keeps the durable facts.
const maxHistoryMessages = 10

// HistoryStore keeps short per-chat conversation memory.
// Safe for concurrent use.
type HistoryStore struct {
	mu    sync.Mutex
	chats map[string][]providers.Message
	limit int
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		chats: make(map[string][]providers.Message),
		limit: maxHistoryMessages,
	}
}

// Snapshot returns a copy of a chat's history.
func (h *HistoryStore) Snapshot(chatID string) []providers.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.chats[chatID]
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendExchange records one completed user/assistant turn, trimming
// the oldest messages past the limit.
func (h *HistoryStore) AppendExchange(chatID, userText, assistantText string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.chats[chatID],
		providers.Message{Role: "user", Content: userText},
		providers.Message{Role: "assistant", Content: assistantText},
	)
	if len(msgs) > h.limit {
		msgs = msgs[len(msgs)-h.limit:]
	}
	h.chats[chatID] = msgs
}

// Reset forgets a chat's memory.
func (h *HistoryStore) Reset(chatID string) {
	h.mu.Lock()
	delete(h.chats, chatID)
	h.mu.Unlock()
}

// Len reports how many chats currently hold memory.
func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chats)
}
