package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

// CatalogRepository holds products and categories seeded with Put calls.
type CatalogRepository struct {
	mu         sync.RWMutex
	products   map[tenantKey]domain.Product
	categories map[tenantKey]domain.Category
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs an empty catalog.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products:   make(map[tenantKey]domain.Product),
		categories: make(map[tenantKey]domain.Category),
	}
}

// PutProduct stores or replaces a product.
func (r *CatalogRepository) PutProduct(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[tenantKey{product.TenantID, product.ID}] = product
}

// PutCategory stores or replaces a category.
func (r *CatalogRepository) PutCategory(category domain.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[tenantKey{category.TenantID, category.ID}] = category
}

// FindProduct implements repositories.CatalogRepository.
func (r *CatalogRepository) FindProduct(ctx context.Context, tenantID, productID string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[tenantKey{tenantID, productID}]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("products.get", "product "+productID+" not found")
	}
	return product, nil
}

// ListProducts implements repositories.CatalogRepository.
func (r *CatalogRepository) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Product
	for key, product := range r.products {
		if key.tenantID == tenantID {
			out = append(out, product)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCategories implements repositories.CatalogRepository.
func (r *CatalogRepository) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Category
	for key, category := range r.categories {
		if key.tenantID == tenantID {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
