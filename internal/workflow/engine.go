// Package workflow drives a chat session through the inspection checklist.
//
// The Engine is invoked once per inbound event. It resolves the session's
// active inspection, updates the record store and the pending-input tracker,
// and replies through the gateway the event arrived on.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/inspectbot/internal/chat"
	"github.com/ashureev/inspectbot/internal/checklist"
	"github.com/ashureev/inspectbot/internal/domain"
	"github.com/ashureev/inspectbot/internal/report"
	"github.com/ashureev/inspectbot/internal/session"
	"github.com/ashureev/inspectbot/internal/store"
)

// Renderer produces report documents.
type Renderer interface {
	LoadTemplate() (*report.Template, error)
	Render(tpl *report.Template, rows []report.Row) ([]byte, error)
}

// Archiver stores a copy of every generated report.
type Archiver interface {
	PutReport(ctx context.Context, inspectionID int64, data []byte) (string, error)
}

// Config holds the Engine's collaborators.
type Config struct {
	Repo      store.Repository
	Tracker   *session.Tracker
	Renderer  Renderer
	Checklist checklist.Definition
	// Archive is optional.
	Archive Archiver
	// TempDir holds rendered reports until they are sent. Empty means os.TempDir.
	TempDir string
}

// Engine is the inspection workflow state machine.
type Engine struct {
	repo      store.Repository
	tracker   *session.Tracker
	renderer  Renderer
	checklist checklist.Definition
	archive   Archiver
	tempDir   string
	locks     *sessionLocks
}

// New creates an Engine.
func New(cfg Config) *Engine {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = session.NewTracker(session.DefaultCapacity, 0)
	}
	return &Engine{
		repo:      cfg.Repo,
		tracker:   tracker,
		renderer:  cfg.Renderer,
		checklist: cfg.Checklist,
		archive:   cfg.Archive,
		tempDir:   cfg.TempDir,
		locks:     newSessionLocks(),
	}
}

// Dispatch handles one event and replies through gw. Events for the same
// session are handled one at a time. Dispatch never panics or returns an
// error; failures are logged.
func (e *Engine) Dispatch(ctx context.Context, gw chat.Gateway, ev chat.Event) {
	unlock := e.locks.lock(ev.SessionID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while handling event",
				"session_id", ev.SessionID, "kind", ev.Kind, "panic", r)
		}
	}()

	var err error
	switch ev.Kind {
	case chat.KindMessage:
		err = e.handleMessage(ctx, gw, ev)
	case chat.KindAction:
		err = e.handleAction(ctx, gw, ev)
	}
	if err != nil {
		slog.Error("Failed to handle event", "session_id", ev.SessionID, "kind", ev.Kind, "error", err)
	}
}

func (e *Engine) handleMessage(ctx context.Context, gw chat.Gateway, ev chat.Event) error {
	sid := ev.SessionID
	switch ev.Text {
	case CommandStart:
		e.tracker.Clear(sid)
		return e.start(ctx, gw, sid)
	case CommandHelp:
		return e.sendMarkdown(ctx, gw, sid, helpText)
	case CommandAbout:
		return e.sendMarkdown(ctx, gw, sid, aboutText)
	}

	// Empty messages (stickers, photos) never count as comment text.
	if ev.Text != "" {
		if p, ok := e.tracker.Consume(sid); ok && p.Mode == session.ModeAwaitingComment {
			return e.saveComment(ctx, gw, sid, p, ev.Text)
		}
	}
	return e.welcome(ctx, gw, sid)
}

func (e *Engine) handleAction(ctx context.Context, gw chat.Gateway, ev chat.Event) error {
	sid := ev.SessionID
	payload := ev.Payload

	switch payload {
	case PayloadStartInline:
		e.tracker.Clear(sid)
		return e.start(ctx, gw, sid)
	case PayloadAbout:
		return e.sendMarkdown(ctx, gw, sid, aboutText)
	case PayloadHelp:
		return e.sendMarkdown(ctx, gw, sid, helpText)
	}

	act, ok := parseAction(payload)
	if !ok {
		slog.Debug("Ignoring unknown action", "session_id", sid, "payload", payload)
		return nil
	}

	insID, err := e.activeInspection(ctx, sid)
	if err != nil {
		return err
	}

	switch act.kind {
	case actionItem:
		e.tracker.Clear(sid)
		return e.showItem(ctx, gw, sid, ev.MessageRef, insID, act.index)
	case actionSet:
		e.tracker.Clear(sid)
		return e.setAnswer(ctx, gw, sid, ev.MessageRef, insID, act.index, act.answer)
	case actionComment:
		return e.beginComment(ctx, gw, sid, ev.MessageRef, insID, act.index)
	case actionGenerate:
		e.tracker.Clear(sid)
		res := e.GenerateReport(ctx, gw, sid, ev.MessageRef, insID)
		if res.Err != nil {
			slog.Error("Report generation failed",
				"session_id", sid, "inspection_id", insID, "outcome", res.Outcome.String(), "error", res.Err)
		} else {
			slog.Info("Report generation finished",
				"session_id", sid, "inspection_id", insID, "outcome", res.Outcome.String(),
				"template_fallback", res.TemplateFallback)
		}
		return nil
	case actionBack:
		e.tracker.Clear(sid)
		return e.showMainMenu(ctx, gw, sid, insID)
	}
	return nil
}

type actionKind int

const (
	actionItem actionKind = iota + 1
	actionSet
	actionComment
	actionGenerate
	actionBack
)

type action struct {
	kind   actionKind
	index  int
	answer domain.Answer
}

// parseAction decodes inspection payloads. Malformed payloads report false.
func parseAction(payload string) (action, bool) {
	switch {
	case payload == PayloadGenerate:
		return action{kind: actionGenerate}, true
	case payload == PayloadBack:
		return action{kind: actionBack}, true
	case strings.HasPrefix(payload, prefixItem):
		idx, ok := parseIndex(strings.TrimPrefix(payload, prefixItem))
		return action{kind: actionItem, index: idx}, ok
	case strings.HasPrefix(payload, prefixComment):
		idx, ok := parseIndex(strings.TrimPrefix(payload, prefixComment))
		return action{kind: actionComment, index: idx}, ok
	case strings.HasPrefix(payload, prefixSet):
		rawIdx, rawAnswer, found := strings.Cut(strings.TrimPrefix(payload, prefixSet), ":")
		if !found {
			return action{}, false
		}
		idx, ok := parseIndex(rawIdx)
		if !ok {
			return action{}, false
		}
		answer, err := domain.ParseAnswer(rawAnswer)
		if err != nil {
			return action{}, false
		}
		return action{kind: actionSet, index: idx, answer: answer}, true
	}
	return action{}, false
}

func parseIndex(s string) (int, bool) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// activeInspection returns the latest inspection for the session, creating
// one if the session has none.
func (e *Engine) activeInspection(ctx context.Context, sid string) (int64, error) {
	id, ok, err := e.repo.LatestInspectionFor(ctx, sid)
	if err != nil {
		return 0, fmt.Errorf("resolve active inspection: %w", err)
	}
	if ok {
		return id, nil
	}
	id, err = e.repo.CreateInspection(ctx, sid, e.checklist.Questions)
	if err != nil {
		return 0, fmt.Errorf("create inspection: %w", err)
	}
	slog.Info("Inspection created lazily", "session_id", sid, "inspection_id", id)
	return id, nil
}

// start always creates a new inspection, even if an unfinished one exists.
func (e *Engine) start(ctx context.Context, gw chat.Gateway, sid string) error {
	id, err := e.repo.CreateInspection(ctx, sid, e.checklist.Questions)
	if err != nil {
		return fmt.Errorf("create inspection: %w", err)
	}
	slog.Info("Inspection started", "session_id", sid, "inspection_id", id)

	if err := e.sendMarkdown(ctx, gw, sid, introText(e.checklist.Questions)); err != nil {
		return err
	}
	return e.showMainMenu(ctx, gw, sid, id)
}

func (e *Engine) welcome(ctx context.Context, gw chat.Gateway, sid string) error {
	kb := welcomeKeyboard()
	return gw.SendText(ctx, sid, welcomeText(e.checklist.Len()), chat.SendOptions{Keyboard: &kb, Markdown: true})
}

func (e *Engine) sendMarkdown(ctx context.Context, gw chat.Gateway, sid, text string) error {
	return gw.SendText(ctx, sid, text, chat.SendOptions{Markdown: true})
}

func (e *Engine) showMainMenu(ctx context.Context, gw chat.Gateway, sid string, insID int64) error {
	items, err := e.repo.GetItems(ctx, insID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	kb := mainMenuKeyboard(items)
	return gw.SendText(ctx, sid, menuText, chat.SendOptions{Keyboard: &kb})
}

// itemAt loads the inspection items and returns the one at index.
func (e *Engine) itemAt(ctx context.Context, insID int64, index int) (domain.Item, bool, error) {
	items, err := e.repo.GetItems(ctx, insID)
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("load items: %w", err)
	}
	if index >= len(items) {
		return domain.Item{}, false, nil
	}
	return items[index], true, nil
}

func (e *Engine) showItem(ctx context.Context, gw chat.Gateway, sid string, ref, insID int64, index int) error {
	item, ok, err := e.itemAt(ctx, insID, index)
	if err != nil || !ok {
		if !ok && err == nil {
			slog.Debug("Ignoring item out of range", "session_id", sid, "index", index)
		}
		return err
	}
	kb := itemKeyboard(index)
	return e.editOrSend(ctx, gw, sid, ref, itemDetailText(item), &kb)
}

func (e *Engine) setAnswer(ctx context.Context, gw chat.Gateway, sid string, ref, insID int64, index int, answer domain.Answer) error {
	if _, ok, err := e.itemAt(ctx, insID, index); err != nil || !ok {
		return err
	}
	if err := e.repo.UpdateItem(ctx, insID, index, domain.SetAnswer(answer)); err != nil {
		return fmt.Errorf("set answer: %w", err)
	}
	if err := e.editOrSend(ctx, gw, sid, ref, answerSetText(index+1, string(answer)), nil); err != nil {
		return err
	}
	return e.showMainMenu(ctx, gw, sid, insID)
}

func (e *Engine) beginComment(ctx context.Context, gw chat.Gateway, sid string, ref, insID int64, index int) error {
	if _, ok, err := e.itemAt(ctx, insID, index); err != nil || !ok {
		return err
	}
	e.tracker.Begin(sid, insID, index)
	return e.editOrSend(ctx, gw, sid, ref, commentPromptText, nil)
}

func (e *Engine) saveComment(ctx context.Context, gw chat.Gateway, sid string, p session.Pending, text string) error {
	if err := e.repo.UpdateItem(ctx, p.InspectionID, p.ItemIndex, domain.SetComment(text)); err != nil {
		return fmt.Errorf("save comment: %w", err)
	}
	if err := gw.SendText(ctx, sid, commentSavedText(p.ItemIndex+1), chat.SendOptions{}); err != nil {
		return err
	}
	return e.showMainMenu(ctx, gw, sid, p.InspectionID)
}

// editOrSend edits the message the button belonged to, or sends a new
// message when the event carries no message reference.
func (e *Engine) editOrSend(ctx context.Context, gw chat.Gateway, sid string, ref int64, text string, kb *chat.Keyboard) error {
	if ref == 0 {
		return gw.SendText(ctx, sid, text, chat.SendOptions{Keyboard: kb})
	}
	return gw.EditText(ctx, sid, ref, text, kb)
}
