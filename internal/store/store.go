// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/inspectbot/internal/domain"
)

// ErrNotFound is returned when a requested inspection does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the only access path to persisted inspections and items.
type Repository interface {
	// CreateInspection inserts a new inspection for the session and seeds one
	// item per question, in order. Either all items are created or none.
	CreateInspection(ctx context.Context, sessionID string, questions []string) (int64, error)

	// UpdateItem writes the non-nil fields of update to the item identified by
	// (inspectionID, index). A missing item is not an error.
	UpdateItem(ctx context.Context, inspectionID int64, index int, update domain.ItemUpdate) error

	// GetItems returns the items of an inspection sorted by index. The slice is
	// empty when the inspection does not exist.
	GetItems(ctx context.Context, inspectionID int64) ([]domain.Item, error)

	// LatestInspectionFor returns the most recently created inspection for a session.
	LatestInspectionFor(ctx context.Context, sessionID string) (int64, bool, error)

	// IsComplete reports whether every item has an answer.
	IsComplete(ctx context.Context, inspectionID int64) (domain.Completeness, error)

	// GetInspection retrieves an inspection by ID. Returns ErrNotFound if absent.
	GetInspection(ctx context.Context, inspectionID int64) (*domain.Inspection, error)

	// ListInspections returns up to limit inspections for a session, newest first.
	ListInspections(ctx context.Context, sessionID string, limit int) ([]domain.Inspection, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
