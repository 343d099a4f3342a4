package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/inspectbot/internal/domain"
	"github.com/ashureev/inspectbot/internal/report"
	"github.com/ashureev/inspectbot/internal/workflow"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	archiveURLExpiry = time.Hour
)

// InspectionHandler serves read-only inspection endpoints.
type InspectionHandler struct {
	*Handler
}

// NewInspectionHandler creates an inspection handler.
func NewInspectionHandler(base *Handler) *InspectionHandler {
	return &InspectionHandler{Handler: base}
}

// RegisterRoutes registers inspection routes.
func (h *InspectionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/inspections", h.ListInspections)
	r.Route("/inspections/{id}", func(r chi.Router) {
		r.Get("/", h.GetInspection)
		r.Get("/report", h.DownloadReport)
		r.Get("/archive", h.ListArchive)
	})
}

type itemView struct {
	Number   int     `json:"number"`
	Question string  `json:"question"`
	Answer   *string `json:"answer"`
	Comment  *string `json:"comment"`
	PhotoRef *string `json:"photo_ref,omitempty"`
	Status   string  `json:"status"`
}

type inspectionView struct {
	domain.Inspection
	Complete     bool       `json:"complete"`
	FirstMissing int        `json:"first_missing,omitempty"`
	Items        []itemView `json:"items"`
}

// ListInspections returns the most recent inspections of a chat session.
func (h *InspectionHandler) ListInspections(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.repo.ListInspections(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Failed to list inspections", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list inspections")
		return
	}
	if list == nil {
		list = []domain.Inspection{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"inspections": list})
}

// GetInspection returns an inspection with its items and completeness.
func (h *InspectionHandler) GetInspection(w http.ResponseWriter, r *http.Request) {
	id, ok := inspectionID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	ins, err := h.repo.GetInspection(ctx, id)
	if err != nil {
		h.storeError(w, id, err)
		return
	}
	items, err := h.repo.GetItems(ctx, id)
	if err != nil {
		h.storeError(w, id, err)
		return
	}

	c := domain.CompletenessOf(items)
	view := inspectionView{
		Inspection:   *ins,
		Complete:     c.Complete,
		FirstMissing: c.FirstMissing,
		Items:        make([]itemView, 0, len(items)),
	}
	for _, it := range items {
		iv := itemView{
			Number:   it.Index + 1,
			Question: it.Question,
			Comment:  it.Comment,
			PhotoRef: it.PhotoRef,
			Status:   it.StatusGlyph(),
		}
		if it.Answer != nil {
			a := string(*it.Answer)
			iv.Answer = &a
		}
		view.Items = append(view.Items, iv)
	}
	JSON(w, http.StatusOK, view)
}

// DownloadReport renders and streams the report of a complete inspection.
func (h *InspectionHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id, ok := inspectionID(w, r)
	if !ok {
		return
	}

	rendered, err := h.reports.RenderReport(r.Context(), id)
	var incomplete *workflow.IncompleteError
	switch {
	case err == nil:
	case workflow.IsNotFound(err):
		Error(w, http.StatusNotFound, "inspection not found")
		return
	case errors.As(err, &incomplete):
		JSON(w, http.StatusConflict, map[string]interface{}{
			"error":         "inspection incomplete",
			"first_missing": incomplete.Position,
		})
		return
	default:
		slog.Error("Failed to render report", "inspection_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%d.docx"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(rendered.Data)))
	if rendered.TemplateFallback {
		w.Header().Set("X-Template-Fallback", "true")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rendered.Data); err != nil {
		slog.Debug("Failed to stream report", "inspection_id", id, "error", err)
	}
}

type archivedReport struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ListArchive lists archived report copies with download links.
func (h *InspectionHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := inspectionID(w, r)
	if !ok {
		return
	}
	if h.archive == nil {
		Error(w, http.StatusNotFound, "report archive is not configured")
		return
	}

	ctx := r.Context()
	keys, err := h.archive.ListReports(ctx, id)
	if err != nil {
		slog.Error("Failed to list archived reports", "inspection_id", id, "error", err)
		Error(w, http.StatusBadGateway, "failed to list archived reports")
		return
	}
	reports := make([]archivedReport, 0, len(keys))
	for _, key := range keys {
		u, err := h.archive.PresignedURL(ctx, key, archiveURLExpiry)
		if err != nil {
			slog.Warn("Failed to presign archived report", "key", key, "error", err)
			continue
		}
		reports = append(reports, archivedReport{Key: key, URL: u})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

func (h *InspectionHandler) storeError(w http.ResponseWriter, id int64, err error) {
	if workflow.IsNotFound(err) {
		Error(w, http.StatusNotFound, "inspection not found")
		return
	}
	slog.Error("Failed to load inspection", "inspection_id", id, "error", err)
	Error(w, http.StatusInternalServerError, "failed to load inspection")
}

func inspectionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid inspection id")
		return 0, false
	}
	return id, true
}
