package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"storesync/internal/domain"
)

// MemoryTenantsRepository supports tenant management when DB is disabled
// (local dev) and backs service-level unit tests.
type MemoryTenantsRepository struct {
	mu      sync.RWMutex
	tenants map[string]*domain.Tenant // tenantID -> Tenant
}

func NewMemoryTenantsRepository() *MemoryTenantsRepository {
	return &MemoryTenantsRepository{
		tenants: map[string]*domain.Tenant{},
	}
}

var _ TenantsRepository = (*MemoryTenantsRepository)(nil)

func (r *MemoryTenantsRepository) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant not found: %s", tenantID)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTenantsRepository) GetTenantByCode(_ context.Context, code string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tenants {
		if t.TenantCode == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tenant not found: %s", code)
}

func (r *MemoryTenantsRepository) ListTenants(_ context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.TenantName), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].TenantCode < all[j].TenantCode
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
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

func (r *MemoryTenantsRepository) ListActiveTenants(_ context.Context) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*domain.Tenant
	for _, t := range r.tenants {
		if t.Status == domain.TenantStatusActive {
			cp := *t
			active = append(active, &cp)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].TenantCode < active[j].TenantCode
	})
	return active, nil
}

func (r *MemoryTenantsRepository) CreateTenant(_ context.Context, tenant *domain.Tenant) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tenant.TenantCode == "" || tenant.TenantName == "" {
		return "", fmt.Errorf("tenant_code and tenant_name are required")
	}
	for _, t := range r.tenants {
		if t.TenantCode == tenant.TenantCode {
			return "", fmt.Errorf("tenant_code already exists: %s", tenant.TenantCode)
		}
	}

	cp := *tenant
	if cp.TenantID == "" {
		cp.TenantID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = domain.TenantStatusActive
	}
	r.tenants[cp.TenantID] = &cp
	return cp.TenantID, nil
}

func (r *MemoryTenantsRepository) UpdateTenant(_ context.Context, tenantID string, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}

	// tenant_code stays immutable here, matching the postgres impl
	existing.TenantName = tenant.TenantName
	existing.APIBaseURL = tenant.APIBaseURL
	existing.APIToken = tenant.APIToken
	existing.PageSize = tenant.PageSize
	existing.DeliveryCredentialKey = tenant.DeliveryCredentialKey
	existing.Metadata = tenant.Metadata
	return nil
}

func (r *MemoryTenantsRepository) SetTenantStatus(_ context.Context, tenantID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}
	existing.Status = status
	return nil
}
