package repository

import (
	"context"
	"errors"

	"project-canvas-hub/internal/history/domain"
)

// ErrConflict is returned by Insert when (project_id, sequence_number) already exists.
var ErrConflict = errors.New("history: sequence number already taken")

// Repository defines append-only persistence for history entries.
// Entries are never updated or deleted.
type Repository interface {
	// HighWaterMark returns the highest sequence number for projectID, or 0 if none.
	HighWaterMark(ctx context.Context, projectID string) (int64, error)
	// Insert stores e. Returns ErrConflict if another entry holds e.SequenceNumber.
	Insert(ctx context.Context, e *domain.Entry) error
	// Latest returns the highest entry for projectID, or nil if none.
	Latest(ctx context.Context, projectID string) (*domain.Entry, error)
	// ListSince returns entries with sequence number > after, ascending. limit <= 0 means no limit.
	ListSince(ctx context.Context, projectID string, after int64, limit int) ([]*domain.Entry, error)
}
