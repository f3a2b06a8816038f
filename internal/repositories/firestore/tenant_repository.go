package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/mathauscm/api-mybot/internal/domain"
	pfirestore "github.com/mathauscm/api-mybot/internal/platform/firestore"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

// TenantRepository reads the root tenants collection.
type TenantRepository struct {
	tenants *pfirestore.BaseRepository[tenantDocument]
}

var _ repositories.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository constructs a Firestore-backed tenant reader.
func NewTenantRepository(provider *pfirestore.Provider) (*TenantRepository, error) {
	if provider == nil {
		return nil, errors.New("tenant repository requires firestore provider")
	}
	return &TenantRepository{
		tenants: pfirestore.NewBaseRepository[tenantDocument](provider, pfirestore.TenantsCollection, nil, nil),
	}, nil
}

// FindByID implements repositories.TenantRepository.
func (r *TenantRepository) FindByID(ctx context.Context, tenantID string) (domain.Tenant, error) {
	doc, err := r.tenants.Get(ctx, "", tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	return toDomainTenant(doc.ID, doc.Data), nil
}

// FindByAPIKeyHash implements repositories.TenantRepository.
func (r *TenantRepository) FindByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return domain.Tenant{}, pfirestore.NotFoundError("tenants.find_by_api_key", "api key hash is empty")
	}
	docs, err := r.tenants.Query(ctx, "", func(q firestore.Query) firestore.Query {
		return q.Where("apiKeyHash", "==", hash).Limit(1)
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(docs) == 0 {
		return domain.Tenant{}, pfirestore.NotFoundError("tenants.find_by_api_key", "no tenant for api key")
	}
	return toDomainTenant(docs[0].ID, docs[0].Data), nil
}
