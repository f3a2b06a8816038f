package memory

import (
	"context"
	"sync"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

// TenantRepository holds tenants seeded with Put.
type TenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant
}

var _ repositories.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository constructs an empty tenant store.
func NewTenantRepository() *TenantRepository {
	return &TenantRepository{tenants: make(map[string]domain.Tenant)}
}

// Put stores or replaces a tenant.
func (r *TenantRepository) Put(tenant domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenant.ID] = tenant
}

// FindByID implements repositories.TenantRepository.
func (r *TenantRepository) FindByID(ctx context.Context, tenantID string) (domain.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tenant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenant, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, repositories.NewNotFoundError("tenants.get", "tenant "+tenantID+" not found")
	}
	return tenant, nil
}

// FindByAPIKeyHash implements repositories.TenantRepository.
func (r *TenantRepository) FindByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tenant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tenant := range r.tenants {
		if hash != "" && tenant.APIKeyHash == hash {
			return tenant, nil
		}
	}
	return domain.Tenant{}, repositories.NewNotFoundError("tenants.find_by_api_key", "no tenant for api key")
}
