// Package session tracks transient per-chat input modes.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Mode is the input mode a chat is currently in.
type Mode int

const (
	// ModeNone means free text is interpreted as commands or greetings.
	ModeNone Mode = iota
	// ModeAwaitingComment means the next free text is a comment for an item.
	ModeAwaitingComment
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	switch m {
	case ModeAwaitingComment:
		return "awaiting_comment"
	default:
		return "none"
	}
}

// Pending is the state of a chat that is mid-entry.
type Pending struct {
	Mode         Mode
	InspectionID int64
	ItemIndex    int
}

// Tracker holds at most one pending state per session. Entries live only in
// memory; a restart drops them. Entries older than the TTL or pushed out by
// capacity behave as if they were never set.
type Tracker struct {
	mu      sync.Mutex
	pending *expirable.LRU[string, Pending]
}

// DefaultCapacity bounds the number of concurrently pending sessions.
const DefaultCapacity = 10000

// NewTracker creates a tracker. A zero ttl disables expiry.
func NewTracker(capacity int, ttl time.Duration) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	onEvict := func(sessionID string, p Pending) {
		slog.Debug("Pending session state removed", "session_id", sessionID, "mode", p.Mode.String())
	}
	return &Tracker{
		pending: expirable.NewLRU[string, Pending](capacity, onEvict, ttl),
	}
}

// Begin enters awaiting-comment mode for the session, replacing any prior state.
func (t *Tracker) Begin(sessionID string, inspectionID int64, itemIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Add(sessionID, Pending{
		Mode:         ModeAwaitingComment,
		InspectionID: inspectionID,
		ItemIndex:    itemIndex,
	})
}

// Consume returns and clears the pending state. A second call without an
// intervening Begin reports false.
func (t *Tracker) Consume(sessionID string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending.Peek(sessionID)
	if !ok {
		return Pending{}, false
	}
	t.pending.Remove(sessionID)
	return p, true
}

// Clear drops any pending state for the session.
func (t *Tracker) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Remove(sessionID)
}

// Len returns the number of sessions with pending state.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len()
}
