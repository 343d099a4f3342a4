// Package api provides the HTTP ops API for inspections.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/inspectbot/internal/store"
	"github.com/ashureev/inspectbot/internal/workflow"
)

// ReportSource renders reports for complete inspections.
type ReportSource interface {
	RenderReport(ctx context.Context, inspectionID int64) (*workflow.Rendered, error)
}

// ArchiveLister exposes archived report copies.
type ArchiveLister interface {
	ListReports(ctx context.Context, inspectionID int64) ([]string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	reports ReportSource
	archive ArchiveLister
}

// NewHandler creates a new Handler with common dependencies. archive may be nil.
func NewHandler(repo store.Repository, reports ReportSource, archive ArchiveLister) *Handler {
	return &Handler{
		repo:    repo,
		reports: reports,
		archive: archive,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
