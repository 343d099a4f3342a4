// Package chat defines the messaging boundary between transports and the
// inspection workflow.
package chat

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EventKind distinguishes free-text messages from button presses.
type EventKind int

const (
	// KindMessage is a free-text or command message.
	KindMessage EventKind = iota
	// KindAction is a button press carrying an opaque payload.
	KindAction
)

// Event is one inbound chat event.
type Event struct {
	Kind      EventKind
	SessionID string
	// Text is set for messages.
	Text string
	// Payload is set for actions.
	Payload string
	// MessageRef identifies the message whose button was pressed.
	MessageRef int64
	// CallbackID is the transport's acknowledgement handle, if any.
	CallbackID string
}

// Message builds a message event.
func Message(sessionID, text string) Event {
	return Event{Kind: KindMessage, SessionID: sessionID, Text: text}
}

// Action builds an action event for a button on message ref.
func Action(sessionID, payload string, ref int64) Event {
	return Event{Kind: KindAction, SessionID: sessionID, Payload: payload, MessageRef: ref}
}

// Button is one inline keyboard button.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Row appends a row of buttons and returns the keyboard.
func (k Keyboard) Row(buttons ...Button) Keyboard {
	return append(k, buttons)
}

// SendOptions carries optional formatting for SendText. Markdown is the
// legacy Telegram Markdown dialect.
type SendOptions struct {
	Keyboard *Keyboard
	Markdown bool
}

// EscapeMarkdown escapes user-supplied text for a Markdown message.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// Gateway delivers outbound messages to a chat.
type Gateway interface {
	// SendText sends a new message.
	SendText(ctx context.Context, target, text string, opts SendOptions) error
	// EditText replaces the text (and keyboard) of a previously sent message.
	EditText(ctx context.Context, target string, ref int64, text string, keyboard *Keyboard) error
	// SendFile uploads a file as a document attachment.
	SendFile(ctx context.Context, target, path, caption string) error
}
