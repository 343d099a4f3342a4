package domain

import "fmt"

// Answer is one of the fixed responses an item can take.
type Answer string

const (
	// AnswerYes marks an item as conforming.
	AnswerYes Answer = "Да"
	// AnswerNo marks an item as not conforming.
	AnswerNo Answer = "Нет"
)

// PendingGlyph is shown for items that have no answer yet.
const PendingGlyph = "⏳"

// ParseAnswer converts a raw payload value into an Answer.
func ParseAnswer(s string) (Answer, error) {
	switch a := Answer(s); a {
	case AnswerYes, AnswerNo:
		return a, nil
	default:
		return "", fmt.Errorf("unknown answer %q", s)
	}
}

// Glyph returns the status glyph used in menus.
func (a Answer) Glyph() string {
	switch a {
	case AnswerYes:
		return "✅"
	case AnswerNo:
		return "❌"
	default:
		return PendingGlyph
	}
}

// Item is one checklist row within an inspection.
// Nil pointers mean the value was never recorded.
type Item struct {
	InspectionID int64   `json:"inspection_id"`
	Index        int     `json:"index"`
	Question     string  `json:"question"`
	Answer       *Answer `json:"answer,omitempty"`
	Comment      *string `json:"comment,omitempty"`
	PhotoRef     *string `json:"photo_ref,omitempty"`
}

// StatusGlyph returns the glyph for the item's current answer.
func (it Item) StatusGlyph() string {
	if it.Answer == nil {
		return PendingGlyph
	}
	return it.Answer.Glyph()
}

// ItemUpdate is a partial update of an item. Only non-nil fields are written.
type ItemUpdate struct {
	Answer   *Answer
	Comment  *string
	PhotoRef *string
}

// IsEmpty reports whether the update would change nothing.
func (u ItemUpdate) IsEmpty() bool {
	return u.Answer == nil && u.Comment == nil && u.PhotoRef == nil
}

// SetAnswer returns an update that writes only the answer.
func SetAnswer(a Answer) ItemUpdate {
	return ItemUpdate{Answer: &a}
}

// SetComment returns an update that writes only the comment.
func SetComment(c string) ItemUpdate {
	return ItemUpdate{Comment: &c}
}
