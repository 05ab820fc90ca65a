package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storesync/internal/domain"
)

// MemoryCursorsRepository in-memory CursorsRepository with the same CAS
// semantics as the postgres impl.
type MemoryCursorsRepository struct {
	mu      sync.Mutex
	cursors map[string]*domain.SyncCursor // tenantID|jobType -> cursor
}

func NewMemoryCursorsRepository() *MemoryCursorsRepository {
	return &MemoryCursorsRepository{
		cursors: map[string]*domain.SyncCursor{},
	}
}

var _ CursorsRepository = (*MemoryCursorsRepository)(nil)

func cursorKey(tenantID string, jobType domain.SyncJobType) string {
	return tenantID + "|" + string(jobType)
}

func (r *MemoryCursorsRepository) GetCursor(_ context.Context, tenantID string, jobType domain.SyncJobType) (*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[cursorKey(tenantID, jobType)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCursorsRepository) CreateCursor(_ context.Context, cursor *domain.SyncCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cursorKey(cursor.TenantID, cursor.JobType)
	if _, exists := r.cursors[key]; exists {
		return fmt.Errorf("cursor already exists: %s", key)
	}
	cp := *cursor
	cp.UpdatedAt = time.Now()
	r.cursors[key] = &cp
	return nil
}

func (r *MemoryCursorsRepository) UpdateCursorCAS(_ context.Context, tenantID string, jobType domain.SyncJobType, newLast string, prevUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[cursorKey(tenantID, jobType)]
	if !ok {
		return false, nil
	}
	if !c.UpdatedAt.Equal(prevUpdatedAt) {
		return false, nil
	}
	c.LastExternalID = newLast
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryCursorsRepository) ResetCursor(_ context.Context, tenantID string, jobType domain.SyncJobType, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cursorKey(tenantID, jobType)
	c, ok := r.cursors[key]
	if !ok {
		r.cursors[key] = &domain.SyncCursor{
			TenantID:       tenantID,
			JobType:        jobType,
			LastExternalID: value,
			UpdatedAt:      time.Now(),
		}
		return nil
	}
	c.LastExternalID = value
	c.UpdatedAt = time.Now()
	return nil
}
