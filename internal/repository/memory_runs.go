package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storesync/internal/domain"
)

// MemoryRunsRepository in-memory RunsRepository.
type MemoryRunsRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.SyncRun // runID -> run
}

func NewMemoryRunsRepository() *MemoryRunsRepository {
	return &MemoryRunsRepository{
		runs: map[string]*domain.SyncRun{},
	}
}

var _ RunsRepository = (*MemoryRunsRepository)(nil)

func copyRun(r *domain.SyncRun) *domain.SyncRun {
	cp := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	cp.ErrorSummary = append([]string(nil), r.ErrorSummary...)
	return &cp
}

func (r *MemoryRunsRepository) CreateRun(_ context.Context, run *domain.SyncRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.RunID]; exists {
		return fmt.Errorf("run already exists: %s", run.RunID)
	}
	cp := copyRun(run)
	cp.Outcome = domain.OutcomeRunning
	cp.FinishedAt = nil
	r.runs[run.RunID] = cp
	return nil
}

func (r *MemoryRunsRepository) FinalizeRun(_ context.Context, run *domain.SyncRun) error {
	if run.FinishedAt == nil {
		return fmt.Errorf("finished_at is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.runs[run.RunID]
	if !ok || existing.Outcome != domain.OutcomeRunning {
		return fmt.Errorf("run not found or already finalized: %s", run.RunID)
	}
	r.runs[run.RunID] = copyRun(run)
	return nil
}

func (r *MemoryRunsRepository) GetRun(_ context.Context, runID string) (*domain.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return copyRun(run), nil
}

func (r *MemoryRunsRepository) ListRuns(_ context.Context, filter RunFilters, page, size int) ([]*domain.SyncRun, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*domain.SyncRun
	for _, run := range r.runs {
		if filter.JobType != "" && string(run.JobType) != filter.JobType {
			continue
		}
		if filter.TenantID != "" && run.TenantID != filter.TenantID {
			continue
		}
		if filter.Outcome != "" && string(run.Outcome) != filter.Outcome {
			continue
		}
		all = append(all, copyRun(run))
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryRunsRepository) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, run := range r.runs {
		if run.StartedAt.Before(cutoff) && run.Outcome != domain.OutcomeRunning {
			delete(r.runs, id)
			deleted++
		}
	}
	return deleted, nil
}
