package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/inspectbot/internal/chat"
)

const writeTimeout = 10 * time.Second

// inFrame is a frame sent by the browser.
type inFrame struct {
	Type    string `json:"type"` // message | action | ping
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
	Ref     int64  `json:"ref,omitempty"`
}

// outFrame is a frame sent to the browser. Data is base64 encoded by
// encoding/json.
type outFrame struct {
	Type     string         `json:"type"` // session | text | edit | document | error | pong
	Session  string         `json:"session,omitempty"`
	Ref      int64          `json:"ref,omitempty"`
	Text     string         `json:"text,omitempty"`
	Keyboard *chat.Keyboard `json:"keyboard,omitempty"`
	Markdown bool           `json:"markdown,omitempty"`
	Name     string         `json:"name,omitempty"`
	Caption  string         `json:"caption,omitempty"`
	Data     []byte         `json:"data,omitempty"`
}

// Conn is one browser connection. It implements chat.Gateway for the
// session it serves.
type Conn struct {
	ws        *websocket.Conn
	sessionID string
	nextRef   atomic.Int64
	writeMu   sync.Mutex
}

func newConn(ws *websocket.Conn, sessionID string) *Conn {
	return &Conn{ws: ws, sessionID: sessionID}
}

// SendText sends a new message and assigns it a reference for later edits.
func (c *Conn) SendText(ctx context.Context, target, text string, opts chat.SendOptions) error {
	if err := c.checkTarget(target); err != nil {
		return err
	}
	return c.write(ctx, outFrame{
		Type:     "text",
		Ref:      c.nextRef.Add(1),
		Text:     text,
		Keyboard: opts.Keyboard,
		Markdown: opts.Markdown,
	})
}

// EditText replaces a previously sent message.
func (c *Conn) EditText(ctx context.Context, target string, ref int64, text string, kb *chat.Keyboard) error {
	if err := c.checkTarget(target); err != nil {
		return err
	}
	return c.write(ctx, outFrame{Type: "edit", Ref: ref, Text: text, Keyboard: kb})
}

// SendFile sends the file contents inline.
func (c *Conn) SendFile(ctx context.Context, target, path, caption string) error {
	if err := c.checkTarget(target); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	return c.write(ctx, outFrame{
		Type:    "document",
		Ref:     c.nextRef.Add(1),
		Name:    filepath.Base(path),
		Caption: caption,
		Data:    data,
	})
}

func (c *Conn) checkTarget(target string) error {
	if target != c.sessionID {
		return fmt.Errorf("connection serves session %s, not %s", c.sessionID, target)
	}
	return nil
}

func (c *Conn) write(ctx context.Context, f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
