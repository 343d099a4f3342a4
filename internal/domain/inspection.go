// Package domain contains core domain types for the inspection bot.
package domain

import (
	"time"
)

// Inspection is one run of the checklist for a chat session.
type Inspection struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Completeness reports whether every item of an inspection has an answer.
// FirstMissing is the 1-based position of the first unanswered item, or 0
// when the inspection is complete.
type Completeness struct {
	Complete     bool `json:"complete"`
	FirstMissing int  `json:"first_missing,omitempty"`
}

// CompletenessOf scans items in index order and stops at the first one
// without an answer. An empty item list counts as complete.
func CompletenessOf(items []Item) Completeness {
	for i := range items {
		if items[i].Answer == nil {
			return Completeness{Complete: false, FirstMissing: items[i].Index + 1}
		}
	}
	return Completeness{Complete: true}
}
