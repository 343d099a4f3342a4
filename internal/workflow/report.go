package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashureev/inspectbot/internal/chat"
	"github.com/ashureev/inspectbot/internal/report"
	"github.com/ashureev/inspectbot/internal/store"
)

// Outcome classifies a report generation attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota + 1
	OutcomeIncomplete
	OutcomeRenderFailed
	OutcomeSendFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeRenderFailed:
		return "render_failed"
	case OutcomeSendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// ReportResult describes what happened when a report was requested.
type ReportResult struct {
	Outcome Outcome
	// MissingPosition is the 1-based position of the first unanswered item
	// when Outcome is OutcomeIncomplete.
	MissingPosition int
	// TemplateFallback is set when the configured template was absent and
	// the blank document was used.
	TemplateFallback bool
	// ArchiveKey is the object key of the archived copy, if any.
	ArchiveKey string
	Err        error
}

// IncompleteError is returned by RenderReport for an inspection with
// unanswered items.
type IncompleteError struct {
	Position int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("inspection incomplete: item %d has no answer", e.Position)
}

// Rendered is a finished report document.
type Rendered struct {
	Data             []byte
	TemplateFallback bool
}

// RenderReport renders the report for a complete inspection without sending
// it anywhere. It returns store.ErrNotFound for an unknown inspection and an
// *IncompleteError when an item is still unanswered.
func (e *Engine) RenderReport(ctx context.Context, inspectionID int64) (*Rendered, error) {
	if _, err := e.repo.GetInspection(ctx, inspectionID); err != nil {
		return nil, err
	}
	c, err := e.repo.IsComplete(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("check completeness: %w", err)
	}
	if !c.Complete {
		return nil, &IncompleteError{Position: c.FirstMissing}
	}
	return e.render(ctx, inspectionID)
}

func (e *Engine) render(ctx context.Context, inspectionID int64) (*Rendered, error) {
	items, err := e.repo.GetItems(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	tpl, err := e.renderer.LoadTemplate()
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	data, err := e.renderer.Render(tpl, report.RowsFromItems(items))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return &Rendered{Data: data, TemplateFallback: tpl.Fallback}, nil
}

// GenerateReport runs the report procedure for the inspection and replies
// through gw. Errors are reported to the user and returned in the result,
// never propagated.
func (e *Engine) GenerateReport(ctx context.Context, gw chat.Gateway, sid string, ref, inspectionID int64) ReportResult {
	c, err := e.repo.IsComplete(ctx, inspectionID)
	if err != nil {
		return e.reportFailed(ctx, gw, sid, ReportResult{Outcome: OutcomeRenderFailed, Err: fmt.Errorf("check completeness: %w", err)})
	}
	if !c.Complete {
		if err := e.editOrSend(ctx, gw, sid, ref, incompleteText(c.FirstMissing), nil); err != nil {
			slog.Warn("Failed to send incomplete notice", "session_id", sid, "error", err)
		}
		return ReportResult{Outcome: OutcomeIncomplete, MissingPosition: c.FirstMissing}
	}

	if err := e.editOrSend(ctx, gw, sid, ref, generatingText, nil); err != nil {
		slog.Warn("Failed to send progress notice", "session_id", sid, "error", err)
	}

	rendered, err := e.render(ctx, inspectionID)
	if err != nil {
		return e.reportFailed(ctx, gw, sid, ReportResult{Outcome: OutcomeRenderFailed, Err: err})
	}
	res := ReportResult{Outcome: OutcomeSent, TemplateFallback: rendered.TemplateFallback}

	path, err := e.writeTemp(rendered.Data)
	if err != nil {
		res.Outcome, res.Err = OutcomeRenderFailed, err
		return e.reportFailed(ctx, gw, sid, res)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove temporary report", "path", path, "error", err)
		}
	}()

	if err := gw.SendFile(ctx, sid, path, reportCaption(inspectionID)); err != nil {
		res.Outcome, res.Err = OutcomeSendFailed, fmt.Errorf("send report: %w", err)
		return e.reportFailed(ctx, gw, sid, res)
	}

	if e.archive != nil {
		key, err := e.archive.PutReport(ctx, inspectionID, rendered.Data)
		if err != nil {
			slog.Warn("Failed to archive report", "inspection_id", inspectionID, "error", err)
		} else {
			res.ArchiveKey = key
		}
	}
	return res
}

func (e *Engine) writeTemp(data []byte) (string, error) {
	dir := e.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "report_*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp report: %w", err)
	}
	return filepath.Clean(path), nil
}

func (e *Engine) reportFailed(ctx context.Context, gw chat.Gateway, sid string, res ReportResult) ReportResult {
	if err := gw.SendText(ctx, sid, reportFailedText, chat.SendOptions{}); err != nil {
		slog.Warn("Failed to send failure notice", "session_id", sid, "error", err)
	}
	return res
}

// IsNotFound reports whether err means the inspection does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
