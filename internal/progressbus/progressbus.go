// Package progressbus is a per-session, single-producer/single-consumer
// event log with replay-on-subscribe, grounded directly on
// original_source/src/sse_manager.py's SSEManager/SSESession
// (create_session idempotent replacement, send_event log-and-broadcast,
// is_expired inactivity check).
package progressbus

import (
	"context"
	"sync"
	"time"

	"github.com/kristoman/standardgpt/internal/types"
)

const (
	// keepaliveInterval matches the teacher's SSE keepalive cadence.
	keepaliveInterval = 30 * time.Second
	// subscribeIdleTimeout is the hard cap on one Subscribe stream's total
	// inactivity, per spec.md §4.9.
	subscribeIdleTimeout = 30 * time.Minute
	// sessionExpiry is how long an idle session's buffered log survives in
	// the Bus before being garbage collected, grounded on SSESession's
	// is_expired(timeout=600).
	sessionExpiry = 10 * time.Minute
)

type session struct {
	mu           sync.Mutex
	events       []types.ProgressEvent
	notify       chan struct{}
	closed       bool
	lastActivity time.Time
}

func newSession(now time.Time) *session {
	return &session{notify: make(chan struct{}), lastActivity: now}
}

// append adds e to the session's log and wakes any subscriber blocked on
// the current notify channel.
func (s *session) append(e types.ProgressEvent, now time.Time) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.lastActivity = now
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

// close marks the session producer-finished and wakes subscribers so they
// can observe the final state and exit once drained.
func (s *session) close(now time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.lastActivity = now
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

func (s *session) isExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity) > sessionExpiry
}

// Bus is a registry of progress sessions.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{sessions: make(map[string]*session), now: time.Now}
}

// CreateSession creates a fresh session under id, idempotently replacing
// any prior session of the same id so no event leaks across reuses.
func (b *Bus) CreateSession(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.sessions[id]; ok {
		old.close(b.now())
	}
	b.sessions[id] = newSession(b.now())
}

// Publish appends event to id's log. Publishing to an unknown id is a
// no-op; callers are expected to have called CreateSession first.
func (b *Bus) Publish(id string, event types.ProgressEvent) {
	b.mu.Lock()
	sess, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return
	}
	event.Timestamp = b.now()
	sess.append(event, b.now())

	if event.Type == types.EventFinalAnswer || event.Type == types.EventError {
		sess.close(b.now())
	}
}

// Close marks id's producer as finished without publishing a terminal
// event (used when the orchestrator aborts for a reason that never reaches
// the FinalAnswer/Error publish path).
func (b *Bus) Close(id string) {
	b.mu.Lock()
	sess, ok := b.sessions[id]
	b.mu.Unlock()
	if ok {
		sess.close(b.now())
	}
}

// Subscribe streams id's events: a Connected event, then every buffered
// event in publication order, then live events as they arrive, with a
// silent keepalive every 30s while idle. The stream ends when ctx is
// cancelled, the session closes and drains, or subscribeIdleTimeout
// elapses with no event delivered.
func (b *Bus) Subscribe(ctx context.Context, id string) <-chan types.ProgressEvent {
	out := make(chan types.ProgressEvent)

	b.mu.Lock()
	sess, ok := b.sessions[id]
	if !ok {
		sess = newSession(b.now())
		b.sessions[id] = sess
	}
	b.mu.Unlock()

	go func() {
		defer close(out)

		select {
		case out <- types.ProgressEvent{Type: types.EventConnected, SessionID: id, Timestamp: b.now()}:
		case <-ctx.Done():
			return
		}

		sess.mu.Lock()
		pending := append([]types.ProgressEvent(nil), sess.events...)
		idx := len(sess.events)
		sess.mu.Unlock()

		if !deliverAll(ctx, out, pending) {
			return
		}

		idleTimer := time.NewTimer(subscribeIdleTimeout)
		defer idleTimer.Stop()
		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			sess.mu.Lock()
			done := sess.closed && idx >= len(sess.events)
			notifyCh := sess.notify
			sess.mu.Unlock()
			if done {
				return
			}

			select {
			case <-notifyCh:
				sess.mu.Lock()
				pending := append([]types.ProgressEvent(nil), sess.events[idx:]...)
				idx = len(sess.events)
				sess.mu.Unlock()
				if len(pending) > 0 {
					resetTimer(idleTimer, subscribeIdleTimeout)
				}
				if !deliverAll(ctx, out, pending) {
					return
				}
			case <-keepalive.C:
				select {
				case out <- types.ProgressEvent{Type: types.EventKeepalive, Timestamp: b.now()}:
				case <-ctx.Done():
					return
				}
			case <-idleTimer.C:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func deliverAll(ctx context.Context, out chan<- types.ProgressEvent, events []types.ProgressEvent) bool {
	for _, e := range events {
		select {
		case out <- e:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Sweep removes sessions idle for longer than sessionExpiry, per
// SSESession.is_expired. Intended to run periodically from a background
// goroutine.
func (b *Bus) Sweep() {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sess := range b.sessions {
		if sess.isExpired(now) {
			delete(b.sessions, id)
		}
	}
}
