// Package convlog writes an NDJSON audit trail of chat traffic, one file per
// session.
package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashureev/inspectbot/internal/chat"
)

// Direction of a logged event relative to the bot.
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Event is one line of the conversation log.
type Event struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	EventType string    `json:"event_type"`
	Text      string    `json:"text,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Ref       int64     `json:"ref,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger records conversation events.
type Logger interface {
	Log(Event)
	Close() error
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

// Config controls the file logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
	// MaxOpenFiles bounds the per-session file handles kept open; the least
	// recently written file is closed first.
	MaxOpenFiles int
}

// FileLogger appends events to <dir>/<session>.ndjson from a single writer
// goroutine. Log never blocks; events are dropped when the queue is full.
type FileLogger struct {
	dir    string
	queue  chan Event
	files  *lru.Cache[string, *os.File]
	logger *slog.Logger
	wg     sync.WaitGroup

	// set by the eviction callback; only touched by the writer or by Close
	// after the writer has exited
	closeErr error

	mu     sync.RWMutex
	closed bool
}

// New returns a FileLogger, or a no-op Logger when cfg is disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	l, err := newFileLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

func newFileLogger(cfg Config, logger *slog.Logger) (*FileLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = 64
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
	}
	files, err := lru.NewWithEvict(cfg.MaxOpenFiles, l.closeFile)
	if err != nil {
		return nil, fmt.Errorf("create file cache: %w", err)
	}
	l.files = files
	return l, nil
}

func (l *FileLogger) closeFile(name string, f *os.File) {
	if err := f.Close(); err != nil {
		l.logger.Warn("Failed to close conversation log file", "file", name, "error", err)
		if l.closeErr == nil {
			l.closeErr = err
		}
	}
}

// Log queues an event for writing.
func (l *FileLogger) Log(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"session_id", ev.SessionID, "event_type", ev.EventType)
	}
}

// Close flushes queued events and closes all files.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	l.files.Purge()
	return l.closeErr
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	for ev := range l.queue {
		if err := l.write(ev); err != nil {
			l.logger.Warn("Failed to write conversation log", "session_id", ev.SessionID, "error", err)
		}
	}
}

func (l *FileLogger) write(ev Event) error {
	name := fileName(ev.SessionID)
	f, ok := l.files.Get(name)
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.files.Add(name, f)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

// fileName maps a session id onto a safe file name.
func fileName(sessionID string) string {
	if sessionID == "" {
		sessionID = "unknown"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, sessionID)
	return safe + ".ndjson"
}

// FromEvent builds the log line for an inbound chat event.
func FromEvent(channel string, ev chat.Event) Event {
	out := Event{
		SessionID: ev.SessionID,
		Channel:   channel,
		Direction: Inbound,
		Text:      ev.Text,
		Payload:   ev.Payload,
		Ref:       ev.MessageRef,
	}
	if ev.Kind == chat.KindAction {
		out.EventType = "action"
	} else {
		out.EventType = "message"
	}
	return out
}

type gateway struct {
	next    chat.Gateway
	log     Logger
	channel string
}

// WrapGateway returns a Gateway that delegates to next and records every
// outbound call in log.
func WrapGateway(next chat.Gateway, log Logger, channel string) chat.Gateway {
	if log == nil {
		return next
	}
	if _, ok := log.(noopLogger); ok {
		return next
	}
	return &gateway{next: next, log: log, channel: channel}
}

func (g *gateway) SendText(ctx context.Context, target, text string, opts chat.SendOptions) error {
	err := g.next.SendText(ctx, target, text, opts)
	g.record(target, "send_text", text, 0, err)
	return err
}

func (g *gateway) EditText(ctx context.Context, target string, ref int64, text string, kb *chat.Keyboard) error {
	err := g.next.EditText(ctx, target, ref, text, kb)
	g.record(target, "edit_text", text, ref, err)
	return err
}

func (g *gateway) SendFile(ctx context.Context, target, path, caption string) error {
	err := g.next.SendFile(ctx, target, path, caption)
	g.record(target, "send_file", caption, 0, err)
	return err
}

func (g *gateway) record(target, eventType, text string, ref int64, err error) {
	ev := Event{
		SessionID: target,
		Channel:   g.channel,
		Direction: Outbound,
		EventType: eventType,
		Text:      text,
		Ref:       ref,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	g.log.Log(ev)
}
