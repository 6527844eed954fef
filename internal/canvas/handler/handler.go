// Package handler exposes the canvas service over HTTP (chi) and gRPC (canvas.v1.CanvasService).
package handler

import (
	"context"

	"project-canvas-hub/internal/canvas/service"
	historydomain "project-canvas-hub/internal/history/domain"
)

// MaxHistoryPage caps one history page on the pull endpoints.
const MaxHistoryPage = 1000

// CanvasService is the minimal canvas service needed by the handlers.
type CanvasService interface {
	Save(ctx context.Context, req service.SaveRequest) (int64, error)
	Latest(ctx context.Context, projectID string) (*historydomain.Entry, error)
	ListSince(ctx context.Context, projectID string, since int64, limit int) ([]*historydomain.Entry, error)
}

func pageSize(limit int) int {
	if limit <= 0 || limit > MaxHistoryPage {
		return MaxHistoryPage
	}
	return limit
}
