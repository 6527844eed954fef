package repository

import (
	"context"
	"sync"

	"project-canvas-hub/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory (STORE_DRIVER=memory).
type MemoryRepository struct {
	mu   sync.RWMutex
	logs []*domain.AuditLog // insertion order
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	cp := *a
	r.mu.Lock()
	r.logs = append(r.logs, &cp)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AuditLog
	skipped := 0
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.logs[i].ProjectID != projectID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		cp := *r.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}
