package firestore

import (
	"context"
	"errors"

	"github.com/mathauscm/api-mybot/internal/domain"
	pfirestore "github.com/mathauscm/api-mybot/internal/platform/firestore"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

const (
	productsCollection   = "products"
	categoriesCollection = "categories"
)

// CatalogRepository reads tenants/{tenantId}/products and categories. Writes belong to the catalog
// admin tooling.
type CatalogRepository struct {
	products   *pfirestore.BaseRepository[productDocument]
	categories *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products:   pfirestore.NewTenantRepository[productDocument](provider, productsCollection, nil, nil),
		categories: pfirestore.NewTenantRepository[categoryDocument](provider, categoriesCollection, nil, nil),
	}, nil
}

// FindProduct implements repositories.CatalogRepository.
func (r *CatalogRepository) FindProduct(ctx context.Context, tenantID, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, tenantID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(tenantID, doc.ID, doc.Data)
}

// ListProducts implements repositories.CatalogRepository.
func (r *CatalogRepository) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := toDomainProduct(tenantID, doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// ListCategories implements repositories.CatalogRepository.
func (r *CatalogRepository) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, domain.Category{ID: doc.ID, TenantID: tenantID, Name: doc.Data.Name})
	}
	return categories, nil
}
