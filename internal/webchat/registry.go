package webchat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// registry tracks the live connection of each web session. A session
// reopened in another tab replaces the older connection.
type registry struct {
	mu     sync.RWMutex
	active map[string]*Conn

	// closeReplaced is called without mu held; the close handshake can block.
	closeReplaced func(*Conn)
}

func newRegistry() *registry {
	return &registry{
		active:        make(map[string]*Conn),
		closeReplaced: closeReplaced,
	}
}

func closeReplaced(c *Conn) {
	if err := c.ws.Close(websocket.StatusNormalClosure, "session replaced"); err != nil {
		slog.Debug("Failed to close replaced web chat connection", "session_id", c.sessionID, "error", err)
	}
}

func (r *registry) register(c *Conn) {
	r.mu.Lock()
	replaced := r.active[c.sessionID]
	r.active[c.sessionID] = c
	r.mu.Unlock()

	slog.Info("Web chat session registered", "session_id", c.sessionID)
	if replaced != nil && replaced != c {
		r.closeReplaced(replaced)
	}
}

func (r *registry) unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[c.sessionID]; ok && current == c {
		delete(r.active, c.sessionID)
		slog.Info("Web chat session unregistered", "session_id", c.sessionID)
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
