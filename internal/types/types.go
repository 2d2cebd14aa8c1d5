// Package types holds the data model shared across the query-orchestration
// core: Route, Embedding, QueryObject, Hit, Exchange, Session, ProgressEvent
// and CacheEntry. Questions and standard numbers are plain strings.
package types

import (
	"fmt"
	"time"
)

// contextKey namespaces values stored on a request context, so this
// package's keys never collide with another package's string/int keys.
type contextKey string

// UserIDContextKey is the gin context key the auth middleware populates
// with the authenticated caller's user id, matching the teacher's
// types.TenantIDContextKey convention.
const UserIDContextKey contextKey = "user_id"

// Route is the closed sum type of retrieval strategies a question can be
// assigned to. Represented as a validated string enum since Go has no
// native tagged union; ValidRoute keeps the set exhaustive in code.
type Route string

const (
	// RouteIncluding searches by one or more standard-number references.
	RouteIncluding Route = "including"
	// RouteWithout searches by free text, no standard number constraint.
	RouteWithout Route = "without"
	// RoutePersonal searches the personnel handbook only.
	RoutePersonal Route = "personal"
	// RouteMemory searches by terms extracted from conversation history.
	RouteMemory Route = "memory"
)

// ValidRoute reports whether r is one of the four defined routes.
func ValidRoute(r Route) bool {
	switch r {
	case RouteIncluding, RouteWithout, RoutePersonal, RouteMemory:
		return true
	default:
		return false
	}
}

// Embedding is a fixed-length, opaque dense vector. The core never inspects
// its dimension; it only checks whether it is present and non-zero.
type Embedding []float32

// IsZero reports whether every component of e is exactly zero, which the
// QueryBuilder treats the same as a missing embedding.
func (e Embedding) IsZero() bool {
	if len(e) == 0 {
		return true
	}
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

// Hit is one search result projected to the three fields the core consumes.
type Hit struct {
	Score     float64 `json:"score"`
	Reference string  `json:"reference"`
	Page      string  `json:"page"`
	Text      string  `json:"text"`
}

// QueryObject is the structured value submitted to the search engine.
// Exactly one of the four route shapes populates Query; a script_score
// clause wraps it when an embedding is available.
type QueryObject struct {
	Size   int         `json:"size"`
	Query  interface{} `json:"query"`
	Source []string    `json:"_source"`
}

// Validate enforces the invariant from original_source/src/query_builders.py
// validate_query_object: a query object must carry a non-empty query and a
// positive size.
func (q *QueryObject) Validate() error {
	if q == nil || q.Query == nil {
		return fmt.Errorf("query object must have a non-empty query")
	}
	if q.Size <= 0 {
		return fmt.Errorf("query object must have a positive size")
	}
	return nil
}

// Exchange is one (user, system) pair in a session's conversation memory.
type Exchange struct {
	User      string    `json:"user"`
	System    string    `json:"system"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a per-caller ordered sequence of recent exchanges.
type Session struct {
	ID          string     `json:"id"`
	Exchanges   []Exchange `json:"exchanges"`
	LastTouched time.Time  `json:"last_touched"`
}

// ProgressEventType tags the variant of a ProgressEvent.
type ProgressEventType string

const (
	EventConnected             ProgressEventType = "connected"
	EventProgress              ProgressEventType = "progress"
	EventToken                 ProgressEventType = "token"
	EventFinalAnswer           ProgressEventType = "final_answer"
	EventConversationID        ProgressEventType = "conversation_id"
	EventConversationTitleUpdate ProgressEventType = "conversation_title_update"
	EventError                 ProgressEventType = "error"
	EventKeepalive             ProgressEventType = "keepalive"
)

// ProgressEvent is a tagged variant delivered over the ProgressBus. Exactly
// one of the payload fields is meaningful for a given Type.
type ProgressEvent struct {
	Type ProgressEventType `json:"type"`

	// Connected
	SessionID string `json:"session_id,omitempty"`

	// Progress
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent,omitempty"`
	Emoji   string `json:"emoji,omitempty"`

	// Token
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// FinalAnswer
	Answer string `json:"answer,omitempty"`

	// ConversationID / ConversationTitleUpdate
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title,omitempty"`

	// Error
	ErrorMessage string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// CacheEntry is the generic value wrapper stored in the Cache, tracking
// creation time (for TTL/eviction) and read popularity.
type CacheEntry[T any] struct {
	Value     T
	CreatedAt time.Time
	HitCount  int
}

// Expired reports whether the entry has outlived ttl as of now.
func (c *CacheEntry[T]) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CreatedAt) > ttl
}
