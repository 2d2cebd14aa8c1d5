// Package memory holds per-session conversation history, grounded on
// original_source/src/session_manager.py's conversation shape and the
// "0" no-memory sentinel referenced throughout
// original_source/src/flow_manager.py.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kristoman/standardgpt/internal/types"
)

const (
	maxExchanges       = 5
	maxSystemTextChars = 1000

	// NoMemory is the literal consumers MUST treat as "no memory" and skip
	// memory-aware branches for.
	NoMemory = "0"
)

type session struct {
	mu        sync.Mutex
	exchanges []types.Exchange
}

// Store is a per-session ordered conversation history. Per the redesign
// flag favouring structured concurrency over a single process-wide lock
// (spec.md §9 "Avoid process-wide locks on the hot path"), each session is
// guarded by its own mutex rather than one shared across all sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*session), now: time.Now}
}

func (s *Store) sessionFor(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess
}

var whitespaceRun = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func normalise(s string) string {
	return strings.TrimSpace(whitespaceRun.Replace(s))
}

// Append trims both fields, truncates system to 1000 chars, appends, and
// keeps only the last 5 exchanges.
func (s *Store) Append(sessionID, user, system string) {
	sess := s.sessionFor(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	system = normalise(system)
	if r := []rune(system); len(r) > maxSystemTextChars {
		system = string(r[:maxSystemTextChars])
	}

	sess.exchanges = append(sess.exchanges, types.Exchange{
		User:      normalise(user),
		System:    system,
		Timestamp: s.now(),
	})
	if len(sess.exchanges) > maxExchanges {
		sess.exchanges = sess.exchanges[len(sess.exchanges)-maxExchanges:]
	}
}

// Get formats sessionID's history as alternating "USER: …"/"SYSTEM: …"
// lines in chronological order. If the session is absent or has no
// exchanges, it returns the literal NoMemory ("0").
func (s *Store) Get(sessionID string) string {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return NoMemory
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.exchanges) == 0 {
		return NoMemory
	}

	var sb strings.Builder
	for i, ex := range sess.exchanges {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "USER: %s\nSYSTEM: %s", ex.User, ex.System)
	}
	return sb.String()
}

// Clear removes all history for sessionID.
func (s *Store) Clear(sessionID string) {
	sess := s.sessionFor(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.exchanges = nil
}

// Rebuild replaces sessionID's history with exchanges, trimmed to the last
// 5, for loading an older persisted conversation back into active memory.
func (s *Store) Rebuild(sessionID string, exchanges []types.Exchange) {
	sess := s.sessionFor(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(exchanges) > maxExchanges {
		exchanges = exchanges[len(exchanges)-maxExchanges:]
	}
	sess.exchanges = append([]types.Exchange(nil), exchanges...)
}

// ExchangeCount reports how many exchanges sessionID currently holds, for
// the GET /api/session/stats endpoint.
func (s *Store) ExchangeCount(sessionID string) int {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.exchanges)
}

// Export returns a copy of sessionID's current exchanges, for the
// POST /api/session/save-memory endpoint to flush in-process memory into
// durable storage.
func (s *Store) Export(sessionID string) []types.Exchange {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]types.Exchange(nil), sess.exchanges...)
}
