package webchat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/inspectbot/internal/chat"
)

type echoDispatcher struct {
	mu     sync.Mutex
	events []chat.Event
	file   string
}

func (d *echoDispatcher) Dispatch(ctx context.Context, gw chat.Gateway, ev chat.Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()

	switch {
	case ev.Kind == chat.KindMessage:
		kb := chat.Keyboard{}.Row(chat.Button{Text: "Go", Payload: "go"})
		_ = gw.SendText(ctx, ev.SessionID, "echo: "+ev.Text, chat.SendOptions{Keyboard: &kb, Markdown: true})
	case ev.Payload == "file":
		_ = gw.SendFile(ctx, ev.SessionID, d.file, "report")
	default:
		_ = gw.EditText(ctx, ev.SessionID, ev.MessageRef, "edited "+ev.Payload, nil)
	}
}

func dial(t *testing.T, srvURL, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srvURL, "http")+query, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) outFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f outFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return f
}

func writeFrame(t *testing.T, ws *websocket.Conn, f inFrame) {
	t.Helper()
	data, _ := json.Marshal(f)
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestHandlerRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "report_1.docx")
	if err := os.WriteFile(file, []byte("PK-docx"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := &echoDispatcher{file: file}
	srv := httptest.NewServer(NewHandler(d, nil, nil, []string{"*"}))
	defer srv.Close()

	ws := dial(t, srv.URL, "")

	hello := readFrame(t, ws)
	if hello.Type != "session" || !strings.HasPrefix(hello.Session, SessionPrefix) {
		t.Fatalf("Expected session frame, got %+v", hello)
	}

	writeFrame(t, ws, inFrame{Type: "message", Text: "  /start  "})
	text := readFrame(t, ws)
	if text.Type != "text" || text.Text != "echo: /start" || text.Ref != 1 || !text.Markdown {
		t.Errorf("Unexpected text frame: %+v", text)
	}
	if text.Keyboard == nil || (*text.Keyboard)[0][0].Payload != "go" {
		t.Errorf("Expected keyboard in frame: %+v", text.Keyboard)
	}

	writeFrame(t, ws, inFrame{Type: "action", Payload: "go", Ref: text.Ref})
	edit := readFrame(t, ws)
	if edit.Type != "edit" || edit.Ref != 1 || edit.Text != "edited go" {
		t.Errorf("Unexpected edit frame: %+v", edit)
	}

	writeFrame(t, ws, inFrame{Type: "action", Payload: "file"})
	doc := readFrame(t, ws)
	if doc.Type != "document" || doc.Name != "report_1.docx" || string(doc.Data) != "PK-docx" || doc.Caption != "report" {
		t.Errorf("Unexpected document frame: %+v", doc)
	}

	writeFrame(t, ws, inFrame{Type: "ping"})
	if pong := readFrame(t, ws); pong.Type != "pong" {
		t.Errorf("Expected pong, got %+v", pong)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) != 3 || d.events[0].SessionID != hello.Session {
		t.Errorf("Unexpected dispatched events: %+v", d.events)
	}
}

func TestHandlerResumesSession(t *testing.T) {
	srv := httptest.NewServer(NewHandler(&echoDispatcher{}, nil, nil, []string{"*"}))
	defer srv.Close()

	id := SessionPrefix + uuid.NewString()
	ws := dial(t, srv.URL, "?session="+id)
	if hello := readFrame(t, ws); hello.Session != id {
		t.Errorf("Expected resumed session %s, got %s", id, hello.Session)
	}
}

func TestHandlerRateLimits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &echoDispatcher{}
	srv := httptest.NewServer(NewHandler(d, nil, NewRateLimiter(ctx, 1, time.Minute), []string{"*"}))
	defer srv.Close()

	ws := dial(t, srv.URL, "")
	readFrame(t, ws)

	writeFrame(t, ws, inFrame{Type: "message", Text: "a"})
	readFrame(t, ws)
	writeFrame(t, ws, inFrame{Type: "message", Text: "b"})
	if f := readFrame(t, ws); f.Type != "error" || f.Text != "rate_limited" {
		t.Errorf("Expected rate limit frame, got %+v", f)
	}
}

func TestResolveSessionID(t *testing.T) {
	valid := uuid.NewString()
	if got := resolveSessionID(SessionPrefix + valid); got != SessionPrefix+valid {
		t.Errorf("Expected valid id to be kept, got %s", got)
	}
	for _, bad := range []string{"", "42", "web:nope", "web:../../etc"} {
		got := resolveSessionID(bad)
		if got == bad || !strings.HasPrefix(got, SessionPrefix) {
			t.Errorf("resolveSessionID(%q) = %q, want fresh id", bad, got)
		}
	}
}

func TestConnRejectsForeignTarget(t *testing.T) {
	c := &Conn{sessionID: "web:a"}
	if err := c.SendText(context.Background(), "web:b", "x", chat.SendOptions{}); err == nil {
		t.Errorf("Expected error for foreign target")
	}
}

func TestRateLimiterEvicts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 2, time.Minute)

	if !rl.Allow("a") || !rl.Allow("a") || rl.Allow("a") {
		t.Errorf("Expected two allowed then denied")
	}
	rl.Allow("b")
	rl.evict(time.Now().Add(2 * time.Minute))
	if rl.size() != 0 {
		t.Errorf("Expected all keys evicted, got %d", rl.size())
	}
}

func (r *registry) current(sessionID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[sessionID]
}

func TestRegistryReplacesSession(t *testing.T) {
	r := newRegistry()
	c1 := &Conn{sessionID: "web:x"}
	r.active[c1.sessionID] = c1
	r.unregister(&Conn{sessionID: "web:x"})
	if r.current("web:x") != c1 {
		t.Errorf("Unregistering a stale connection must keep the current one")
	}
	r.unregister(c1)
	if r.len() != 0 {
		t.Errorf("Expected empty registry")
	}
}

func TestRegistryClosesReplacedWithoutLock(t *testing.T) {
	r := newRegistry()
	closed := make(chan *Conn, 1)
	r.closeReplaced = func(c *Conn) {
		// unregister takes the lock and would deadlock if register still held it
		r.unregister(c)
		closed <- c
	}

	c1 := &Conn{sessionID: "web:x"}
	c2 := &Conn{sessionID: "web:x"}
	r.register(c1)

	done := make(chan struct{})
	go func() {
		r.register(c2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked while closing the replaced connection")
	}

	if got := <-closed; got != c1 {
		t.Errorf("Expected the first connection to be closed")
	}
	if r.current("web:x") != c2 {
		t.Errorf("Expected the new connection to stay registered")
	}
}
