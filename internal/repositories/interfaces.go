package repositories

import (
	"context"
	"time"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
)

// RepositoryError categorises persistence failures for services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Every method is scoped by tenant.
type OrderRepository interface {
	// Insert stores a new order and claims its order number. A taken number yields a conflict error.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, tenantID, orderNumber string) (domain.Order, error)
	// UpdateStatus applies change only while the stored status equals change.From; otherwise it
	// returns a conflict error and leaves the order untouched.
	UpdateStatus(ctx context.Context, tenantID, orderID string, change domain.StatusChange) (domain.Order, error)
	UpdateRating(ctx context.Context, tenantID, orderID string, rating OrderRating) (domain.Order, error)
	AppendNote(ctx context.Context, tenantID, orderID string, note domain.OrderNote) (domain.Order, error)
	List(ctx context.Context, tenantID string, filter OrderListQuery) (domain.CursorPage[domain.Order], error)
	// ListCreatedBetween returns every order created in [start, end).
	ListCreatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]domain.Order, error)
}

// CounterRepository hands out per-tenant sequence values.
type CounterRepository interface {
	// Next atomically increments the named counter and returns the new value. A missing counter starts at 1.
	Next(ctx context.Context, tenantID, counterID string) (int64, error)
}

// CatalogRepository is the read-only catalog view.
type CatalogRepository interface {
	FindProduct(ctx context.Context, tenantID, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error)
}

// TenantRepository resolves tenant accounts.
type TenantRepository interface {
	FindByID(ctx context.Context, tenantID string) (domain.Tenant, error)
	FindByAPIKeyHash(ctx context.Context, hash string) (domain.Tenant, error)
}

// HealthRepository reports the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderRating is the rating payload written by UpdateRating.
type OrderRating struct {
	Value   int
	Comment string
	RatedAt time.Time
}

// OrderListQuery is a validated listing request. After is zero for the first page.
type OrderListQuery struct {
	Statuses      []domain.OrderStatus
	CustomerPhone string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	After         pagination.Cursor
}
