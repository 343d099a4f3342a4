// Package webchat serves the inspection workflow to browsers over WebSocket.
package webchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/inspectbot/internal/chat"
	"github.com/ashureev/inspectbot/internal/convlog"
)

// SessionPrefix marks web chat session ids.
const SessionPrefix = "web:"

// channel is the conversation log channel name.
const channel = "web"

// Dispatcher handles one chat event and replies through gw.
type Dispatcher interface {
	Dispatch(ctx context.Context, gw chat.Gateway, ev chat.Event)
}

// Handler upgrades requests to WebSocket chat sessions.
type Handler struct {
	engine         Dispatcher
	log            convlog.Logger
	limiter        *RateLimiter
	conns          *registry
	originPatterns []string
}

// NewHandler creates a web chat handler. limiter may be nil.
func NewHandler(engine Dispatcher, log convlog.Logger, limiter *RateLimiter, allowedOrigins []string) *Handler {
	if log == nil {
		log = convlog.Noop()
	}
	return &Handler{
		engine:         engine,
		log:            log,
		limiter:        limiter,
		conns:          newRegistry(),
		originPatterns: originPatterns(allowedOrigins),
	}
}

// originPatterns converts configured origins into host patterns accepted by
// websocket.AcceptOptions.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := resolveSessionID(r.URL.Query().Get("session"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	conn := newConn(ws, sessionID)
	h.conns.register(conn)
	defer h.conns.unregister(conn)

	ctx := r.Context()
	if err := conn.write(ctx, outFrame{Type: "session", Session: sessionID}); err != nil {
		slog.Debug("Failed to announce session", "error", err, "session_id", sessionID)
		return
	}

	gw := convlog.WrapGateway(conn, h.log, channel)
	h.readLoop(ctx, ws, conn, gw)
	slog.Info("Web chat session ended", "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *Conn, gw chat.Gateway) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", conn.sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", conn.sessionID)
			}
			return
		}

		var frame inFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("Ignoring malformed frame", "session_id", conn.sessionID, "error", err)
			continue
		}

		ev, ok := toEvent(conn.sessionID, frame)
		if !ok {
			if frame.Type == "ping" {
				if err := conn.write(ctx, outFrame{Type: "pong"}); err != nil {
					slog.Debug("Failed to send pong", "error", err)
				}
			}
			continue
		}

		if h.limiter != nil && !h.limiter.Allow(conn.sessionID) {
			if err := conn.write(ctx, outFrame{Type: "error", Text: "rate_limited"}); err != nil {
				slog.Debug("Failed to send rate limit notice", "error", err)
			}
			continue
		}

		h.log.Log(convlog.FromEvent(channel, ev))
		h.engine.Dispatch(ctx, gw, ev)
	}
}

// toEvent maps a browser frame to a chat event. Message text is trimmed the
// same way Telegram messages are.
func toEvent(sessionID string, f inFrame) (chat.Event, bool) {
	switch f.Type {
	case "message":
		return chat.Message(sessionID, strings.TrimSpace(f.Text)), true
	case "action":
		return chat.Action(sessionID, f.Payload, f.Ref), true
	default:
		return chat.Event{}, false
	}
}

// resolveSessionID keeps a well-formed requested id and mints a new one
// otherwise.
func resolveSessionID(requested string) string {
	if id, ok := strings.CutPrefix(requested, SessionPrefix); ok {
		if parsed, err := uuid.Parse(id); err == nil {
			return SessionPrefix + parsed.String()
		}
	}
	return SessionPrefix + uuid.NewString()
}
