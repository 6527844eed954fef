package repository

import (
	"context"
	"sort"
	"sync"

	"project-canvas-hub/internal/history/domain"
)

// MemoryRepository keeps history in process memory. Used when STORE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string][]*domain.Entry // ascending by SequenceNumber
}

// NewMemoryRepository returns an empty in-memory history repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[string][]*domain.Entry)}
}

func (r *MemoryRepository) HighWaterMark(ctx context.Context, projectID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.projects[projectID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].SequenceNumber, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, e *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.projects[e.ProjectID]
	i := sort.Search(len(list), func(i int) bool { return list[i].SequenceNumber >= e.SequenceNumber })
	if i < len(list) && list[i].SequenceNumber == e.SequenceNumber {
		return ErrConflict
	}
	stored := copyEntry(e)
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = stored
	r.projects[e.ProjectID] = list
	return nil
}

func (r *MemoryRepository) Latest(ctx context.Context, projectID string) (*domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.projects[projectID]
	if len(list) == 0 {
		return nil, nil
	}
	return copyEntry(list[len(list)-1]), nil
}

func (r *MemoryRepository) ListSince(ctx context.Context, projectID string, after int64, limit int) ([]*domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.projects[projectID]
	i := sort.Search(len(list), func(i int) bool { return list[i].SequenceNumber > after })
	out := make([]*domain.Entry, 0, len(list)-i)
	for ; i < len(list); i++ {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyEntry(list[i]))
	}
	return out, nil
}

func copyEntry(e *domain.Entry) *domain.Entry {
	c := *e
	c.Snapshot = e.Snapshot.Clone()
	return &c
}
