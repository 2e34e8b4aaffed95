// Package funnel tracks where each conversation stands in the sales
// funnel and produces the scripted side of the bot's replies: stage
// transitions, slot extraction (name, service, plan) and the templated
// lines sent when the stage machine short-circuits the model.
package funnel

import (
	"context"
	"sync"
	"time"
)

// Stage is a point in the sales funnel. Order is priority: a session
// only ever moves to a stage of equal or higher priority.
type Stage int

const (
	StageStart Stage = iota
	StageDiscovery
	StageProposal
	StageClose
	StagePaymentPending
	StageConfirmed
)

var stageNames = map[Stage]string{
	StageStart:          "inicio",
	StageDiscovery:      "descubrimiento",
	StageProposal:       "propuesta",
	StageClose:          "cierre",
	StagePaymentPending: "pago_pendiente",
	StageConfirmed:      "confirmado",
}

func (s Stage) String() string { return stageNames[s] }

// Advance returns next if it does not regress below s. A stray "hola"
// after pago_pendiente must never reset the funnel.
func (s Stage) Advance(next Stage) Stage {
	if next >= s {
		return next
	}
	return s
}

// Session is one chat's funnel state.
type Session struct {
	ChatID        string
	Name          string
	Interest      string // canonical service label, sticky once set
	Plan          string
	Stage         Stage
	OffTopicCount int
	HasIntent     bool
	LastIntent    Stage
}

// DefaultSessionTTL matches the original bot's 30-minute session memory.
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	session   *Session
	expiresAt time.Time
}

// Store holds funnel sessions in memory with TTL-based expiry.
// Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*sessionEntry
}

// NewStore creates a session store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*sessionEntry),
	}
}

// GetOrCreate returns the live session for a chat, creating a fresh one
// when none exists or the previous one expired.
func (s *Store) GetOrCreate(chatID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.sessions[chatID]; ok && now.Before(e.expiresAt) {
		return e.session
	}

	sess := &Session{ChatID: chatID}
	s.sessions[chatID] = &sessionEntry{session: sess, expiresAt: now.Add(s.ttl)}
	return sess
}

// Touch extends a session's TTL after a processed turn.
func (s *Store) Touch(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[chatID]; ok {
		e.expiresAt = time.Now().Add(s.ttl)
	}
}

// Reset discards a chat's session entirely.
func (s *Store) Reset(chatID string) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

// Len reports the number of stored sessions, expired included until
// swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and reports how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	dropped := 0
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
