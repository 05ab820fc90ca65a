package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storesync/internal/domain"
)

// MemoryOrdersRepository in-memory OrdersRepository, used when DB is
// disabled and by service-level unit tests. Mirrors the postgres impl's
// semantics: composite-key lookups, idempotent upsert, deterministic
// ambiguity resolution (newest created_at wins).
type MemoryOrdersRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order // orderID -> Order
	seq    int                      // created_at tie-breaker for fake clocks
}

func NewMemoryOrdersRepository() *MemoryOrdersRepository {
	return &MemoryOrdersRepository{
		orders: map[string]*domain.Order{},
	}
}

var _ OrdersRepository = (*MemoryOrdersRepository)(nil)

// InjectOrder seeds an order row directly, bypassing upsert semantics.
// Test helper for reproducing historical duplicate-row data.
func (r *MemoryOrdersRepository) InjectOrder(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *order
	if cp.OrderID == "" {
		cp.OrderID = uuid.NewString()
	}
	r.seq++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Microsecond)
	}
	r.orders[cp.OrderID] = &cp
}

func (r *MemoryOrdersRepository) ResolveOrder(_ context.Context, tenantID, externalID string) (*ResolveResult, error) {
	if tenantID == "" || externalID == "" {
		return nil, fmt.Errorf("tenant_id and external_id are required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*domain.Order
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.ExternalID == externalID {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return &ResolveResult{}, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	cp := *matches[0]
	return &ResolveResult{Order: &cp, Matches: len(matches)}, nil
}

func (r *MemoryOrdersRepository) UpsertOrder(_ context.Context, order *domain.Order) (*UpsertResult, error) {
	if order.TenantID == "" || order.ExternalID == "" {
		return nil, fmt.Errorf("tenant_id and external_id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// newest row wins, as in the postgres resolve path
	var existing *domain.Order
	for _, o := range r.orders {
		if o.TenantID == order.TenantID && o.ExternalID == order.ExternalID {
			if existing == nil || o.CreatedAt.After(existing.CreatedAt) {
				existing = o
			}
		}
	}

	now := time.Now()
	if existing == nil {
		cp := *order
		if cp.OrderID == "" {
			cp.OrderID = uuid.NewString()
		}
		r.seq++
		cp.CreatedAt = now.Add(time.Duration(r.seq) * time.Microsecond)
		cp.UpdatedAt = cp.CreatedAt
		r.orders[cp.OrderID] = &cp
		order.OrderID = cp.OrderID
		return &UpsertResult{Created: true}, nil
	}

	prev := existing.Status
	existing.ExternalRef = order.ExternalRef
	existing.Status = order.Status
	existing.TotalCents = order.TotalCents
	existing.CustomerName = order.CustomerName
	existing.CustomerPhone = order.CustomerPhone
	existing.Items = order.Items
	existing.ExternalCreatedAt = order.ExternalCreatedAt
	existing.UpdatedAt = now
	order.OrderID = existing.OrderID

	return &UpsertResult{
		Created:       false,
		StatusChanged: prev != order.Status,
		PrevStatus:    prev,
	}, nil
}

func (r *MemoryOrdersRepository) GetOrder(_ context.Context, tenantID, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, fmt.Errorf("order not found: %s", orderID)
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryOrdersRepository) ListRecentExternalIDs(_ context.Context, tenantID string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// one id per external_id, numeric core descending
	seen := map[string]bool{}
	var ids []string
	for _, o := range r.orders {
		if o.TenantID == tenantID && !seen[o.ExternalID] {
			seen[o.ExternalID] = true
			ids = append(ids, o.ExternalID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return domain.CompareExternalIDs(ids[i], ids[j]) > 0
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *MemoryOrdersRepository) ListOpenOrders(_ context.Context, tenantID string, limit int) ([]*domain.Order, error) {
	if limit < 1 {
		limit = 200
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []*domain.Order
	for _, o := range r.orders {
		if o.TenantID == tenantID && !o.Status.IsTerminal() {
			cp := *o
			open = append(open, &cp)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		return domain.CompareExternalIDs(open[i].ExternalID, open[j].ExternalID) > 0
	})
	if len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

func (r *MemoryOrdersRepository) MaxExternalID(_ context.Context, tenantID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := ""
	for _, o := range r.orders {
		if o.TenantID != tenantID {
			continue
		}
		if max == "" || domain.CompareExternalIDs(o.ExternalID, max) > 0 {
			max = o.ExternalID
		}
	}
	return max, nil
}

func (r *MemoryOrdersRepository) FlagOrder(_ context.Context, tenantID, orderID string, flagged bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return fmt.Errorf("order not found: %s", orderID)
	}
	o.Flagged = flagged
	o.UpdatedAt = time.Now()
	return nil
}

// CountOrders test helper
func (r *MemoryOrdersRepository) CountOrders(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, o := range r.orders {
		if o.TenantID == tenantID {
			n++
		}
	}
	return n
}
