// Package memory implements the repositories in process. It backs local development
// (API_STORE_BACKEND=memory) and service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/platform/pagination"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

type tenantKey struct {
	tenantID string
	id       string
}

// OrderRepository is a mutex-guarded order store.
type OrderRepository struct {
	mu      sync.RWMutex
	orders  map[tenantKey]domain.Order
	numbers map[tenantKey]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[tenantKey]domain.Order),
		numbers: make(map[tenantKey]string),
	}
}

// Insert implements repositories.OrderRepository.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	numberKey := tenantKey{order.TenantID, order.OrderNumber}
	if _, taken := r.numbers[numberKey]; taken {
		return repositories.NewConflictError("orders.insert", "order number "+order.OrderNumber+" already exists")
	}
	orderKey := tenantKey{order.TenantID, order.ID}
	if _, exists := r.orders[orderKey]; exists {
		return repositories.NewConflictError("orders.insert", "order "+order.ID+" already exists")
	}
	r.orders[orderKey] = cloneOrder(order)
	r.numbers[numberKey] = order.ID
	return nil
}

// FindByID implements repositories.OrderRepository.
func (r *OrderRepository) FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(tenantID, orderID)
}

// FindByNumber implements repositories.OrderRepository.
func (r *OrderRepository) FindByNumber(ctx context.Context, tenantID, orderNumber string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.numbers[tenantKey{tenantID, orderNumber}]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.find_by_number", "order "+orderNumber+" not found")
	}
	return r.get(tenantID, id)
}

// UpdateStatus implements repositories.OrderRepository.
func (r *OrderRepository) UpdateStatus(ctx context.Context, tenantID, orderID string, change domain.StatusChange) (domain.Order, error) {
	return r.mutate(ctx, tenantID, orderID, func(order *domain.Order) error {
		if order.Status != change.From {
			return repositories.NewConflictError("orders.update_status", "order "+orderID+" is "+string(order.Status))
		}
		order.ApplyStatusChange(change)
		return nil
	})
}

// UpdateRating implements repositories.OrderRepository.
func (r *OrderRepository) UpdateRating(ctx context.Context, tenantID, orderID string, rating repositories.OrderRating) (domain.Order, error) {
	return r.mutate(ctx, tenantID, orderID, func(order *domain.Order) error {
		value := rating.Value
		at := rating.RatedAt
		order.Rating = &value
		order.RatingComment = rating.Comment
		order.RatedAt = &at
		order.UpdatedAt = at
		return nil
	})
}

// AppendNote implements repositories.OrderRepository.
func (r *OrderRepository) AppendNote(ctx context.Context, tenantID, orderID string, note domain.OrderNote) (domain.Order, error) {
	return r.mutate(ctx, tenantID, orderID, func(order *domain.Order) error {
		order.Notes = append(order.Notes, note)
		order.UpdatedAt = note.CreatedAt
		return nil
	})
}

// List implements repositories.OrderRepository with the same ordering as the Firestore store.
func (r *OrderRepository) List(ctx context.Context, tenantID string, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	statuses := make(map[domain.OrderStatus]struct{}, len(query.Statuses))
	for _, s := range query.Statuses {
		statuses[s] = struct{}{}
	}
	phone := strings.TrimSpace(query.CustomerPhone)

	matched := r.filter(tenantID, func(o domain.Order) bool {
		if len(statuses) > 0 {
			if _, ok := statuses[o.Status]; !ok {
				return false
			}
		}
		if phone != "" && o.Customer.Phone != phone {
			return false
		}
		if query.CreatedFrom != nil && o.CreatedAt.Before(*query.CreatedFrom) {
			return false
		}
		if query.CreatedTo != nil && o.CreatedAt.After(*query.CreatedTo) {
			return false
		}
		return true
	})
	sort.Slice(matched, func(i, j int) bool { return newerFirst(matched[i], matched[j]) })

	start := 0
	if !query.After.IsZero() {
		pivot := domain.Order{ID: query.After.ID, CreatedAt: query.After.CreatedAt}
		start = sort.Search(len(matched), func(i int) bool { return newerFirst(pivot, matched[i]) })
	}

	page := domain.CursorPage[domain.Order]{}
	end := min(start+limit, len(matched))
	page.Items = matched[start:end]
	if end < len(matched) && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ListCreatedBetween implements repositories.OrderRepository.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders := r.filter(tenantID, func(o domain.Order) bool {
		return !o.CreatedAt.Before(start) && o.CreatedAt.Before(end)
	})
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (r *OrderRepository) get(tenantID, orderID string) (domain.Order, error) {
	order, ok := r.orders[tenantKey{tenantID, orderID}]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.get", "order "+orderID+" not found")
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) mutate(ctx context.Context, tenantID, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.get(tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := fn(&order); err != nil {
		return domain.Order{}, err
	}
	r.orders[tenantKey{tenantID, orderID}] = order
	return cloneOrder(order), nil
}

func (r *OrderRepository) filter(tenantID string, keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Order
	for key, order := range r.orders {
		if key.tenantID == tenantID && keep(order) {
			out = append(out, cloneOrder(order))
		}
	}
	return out
}

// newerFirst orders by createdAt then id, both descending.
func newerFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	for i := range o.Items {
		o.Items[i].Options = append([]domain.SelectedOption(nil), o.Items[i].Options...)
	}
	o.Notes = append([]domain.OrderNote(nil), o.Notes...)
	o.StatusHistory = append([]domain.StatusChange(nil), o.StatusHistory...)
	return o
}
