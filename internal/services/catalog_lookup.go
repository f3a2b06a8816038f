package services

import (
	"context"
	"errors"
	"strings"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

// ErrProductNotFound indicates the product does not exist for the tenant.
var ErrProductNotFound = errors.New("catalog: product not found")

type catalogLookup struct {
	repo repositories.CatalogRepository
}

// NewCatalogLookup adapts the catalog repository to the lookup used during order validation.
func NewCatalogLookup(repo repositories.CatalogRepository) (CatalogLookup, error) {
	if repo == nil {
		return nil, errors.New("catalog lookup: repository is required")
	}
	return &catalogLookup{repo: repo}, nil
}

func (c *catalogLookup) FindProduct(ctx context.Context, tenantID, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, ErrProductNotFound
	}
	product, err := c.repo.FindProduct(ctx, tenantID, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Product{}, ErrProductNotFound
		}
		return domain.Product{}, mapRepositoryError(err)
	}
	return product, nil
}
